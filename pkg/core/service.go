/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package core wires the ECP client, discovery, and the durable stores
// into the controller service the API layer calls into.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/devicestore"
	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
	"github.com/zrocontrol/zrocontrol/pkg/sessionstore"
)

const (
	// DeviceTimeout is the normal per-call device timeout class.
	DeviceTimeout = 3 * time.Second
	// FastTimeout is the snappier class used on interactive paths.
	FastTimeout = 1500 * time.Millisecond

	clientCacheSize = 64
)

// Service owns the stores, discovery, and two bounded client caches
// (one per timeout class). Safe for concurrent use.
type Service struct {
	devices  *devicestore.Store
	sessions *sessionstore.Store
	disc     DeviceDiscoverer
	factory  ClientFactory

	normal *clientCache
	fast   *clientCache

	logger logger.Logger
}

// NewService assembles the controller. A nil factory uses the real ECP
// client.
func NewService(
	devices *devicestore.Store,
	sessions *sessionstore.Store,
	disc DeviceDiscoverer,
	factory ClientFactory,
	log logger.Logger,
) *Service {
	if factory == nil {
		factory = func(ip string, timeout time.Duration, l logger.Logger) (DeviceClient, error) {
			return ecp.NewClient(ip, timeout, l)
		}
	}

	return &Service{
		devices:  devices,
		sessions: sessions,
		disc:     disc,
		factory:  factory,
		normal:   newClientCache(clientCacheSize),
		fast:     newClientCache(clientCacheSize),
		logger:   log.WithComponent("core"),
	}
}

// Devices exposes the device store.
func (s *Service) Devices() *devicestore.Store {
	return s.devices
}

// Sessions exposes the session store.
func (s *Service) Sessions() *sessionstore.Store {
	return s.sessions
}

// Client returns a cached device client with the normal timeout.
func (s *Service) Client(ip string) (DeviceClient, error) {
	return s.clientFor(s.normal, ip, DeviceTimeout)
}

// FastClient returns a cached device client with the fast timeout.
func (s *Service) FastClient(ip string) (DeviceClient, error) {
	return s.clientFor(s.fast, ip, FastTimeout)
}

func (s *Service) clientFor(cache *clientCache, ip string, timeout time.Duration) (DeviceClient, error) {
	if client, ok := cache.get(ip); ok {
		return client, nil
	}

	client, err := s.factory(ip, timeout, s.logger)
	if err != nil {
		return nil, err
	}

	cache.put(ip, client)

	return client, nil
}

// PollActiveApp queries the device's foreground app and feeds the
// observation into both stores: the device record (last-active and
// recent-channel bump) and the viewer's session state machine.
func (s *Service) PollActiveApp(ctx context.Context, ip, browserID string) (*models.ActiveApp, error) {
	client, err := s.FastClient(ip)
	if err != nil {
		return nil, err
	}

	obs, err := client.ActiveApp(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.devices.NoteActiveApp(ip, obs); err != nil {
		return obs, err
	}

	if _, err := s.sessions.Observe(ip, browserID, obs, time.Now()); err != nil {
		return obs, err
	}

	return obs, nil
}

// CheckReachable probes the device with a fast device-info query and
// stamps the store either way. Protocol failures are a reachability
// result, not an error; only invalid addresses or store write failures
// error out.
func (s *Service) CheckReachable(ctx context.Context, ip string) (models.DeviceRecord, models.DeviceIdentity, bool, error) {
	client, err := s.FastClient(ip)
	if err != nil {
		return models.DeviceRecord{}, models.DeviceIdentity{}, false, err
	}

	info, err := client.DeviceInfo(ctx)
	if err != nil {
		if !errors.Is(err, ecp.ErrProtocol) {
			return models.DeviceRecord{}, models.DeviceIdentity{}, false, err
		}

		rec, serr := s.devices.UpdateSeen(ip, false, "", "")

		return rec, models.DeviceIdentity{IP: ip}, false, serr
	}

	rec, err := s.devices.UpdateSeen(ip, true, info.Name, info.Model())

	return rec, info, true, err
}

// LaunchChannel launches the channel and bumps the device's recent
// list in the same action.
func (s *Service) LaunchChannel(ctx context.Context, ip, appID, appName string) error {
	client, err := s.FastClient(ip)
	if err != nil {
		return err
	}

	if err := client.Launch(ctx, appID); err != nil {
		return err
	}

	_, err = s.devices.BumpRecent(ip, appID, appName)

	return err
}

// UserView returns the viewer's watch-time aggregates for a device.
func (s *Service) UserView(ip, browserID string) (models.UserWatchView, error) {
	return s.sessions.UserView(ip, browserID, time.Now())
}

// DiscoveredDevice is one discovery result folded together with the
// device's stored record.
type DiscoveredDevice struct {
	IP              string            `json:"ip"`
	Name            string            `json:"name"`
	Model           string            `json:"model"`
	Reachable       bool              `json:"reachable"`
	LastSeenTS      *models.Timestamp `json:"last_seen_ts"`
	LastReachableTS *models.Timestamp `json:"last_reachable_ts"`
}

// DiscoverAndRecord runs one discovery pass and folds every responder
// into the device store. A positive window overrides the configured
// listen window. A device counts as reachable when its enrichment query
// returned any detail beyond the bare address.
func (s *Service) DiscoverAndRecord(ctx context.Context, window time.Duration) ([]DiscoveredDevice, error) {
	identities, err := s.disc.Discover(ctx, window)
	if err != nil {
		return nil, err
	}

	result := make([]DiscoveredDevice, 0, len(identities))

	for _, d := range identities {
		reachable := d.Name != "" || d.ModelName != "" || d.ModelNumber != "" ||
			d.SerialNumber != "" || d.UDN != ""

		rec, err := s.devices.UpdateSeen(d.IP, reachable, d.Name, d.Model())
		if err != nil {
			return nil, err
		}

		name := d.Name
		if name == "" {
			name = rec.DeviceName
		}

		if name == "" {
			name = "Roku"
		}

		model := d.Model()
		if model == "" {
			model = rec.DeviceModel
		}

		result = append(result, DiscoveredDevice{
			IP:              d.IP,
			Name:            name,
			Model:           model,
			Reachable:       reachable,
			LastSeenTS:      rec.LastSeenTS,
			LastReachableTS: rec.LastReachableTS,
		})
	}

	return result, nil
}
