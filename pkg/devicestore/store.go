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

// Package devicestore keeps one durable record per device address:
// seen/reachable timestamps, display name and model, the last observed
// active app, and a bounded recently-opened channel list.
package devicestore

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/jsonstore"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
)

// Store is a per-device document store under <dataDir>/devices.
// Documents are written atomically; concurrent writers across
// processes are last-writer-wins by contract.
type Store struct {
	docs   *jsonstore.Store
	logger logger.Logger
	now    func() time.Time
}

func New(dataDir string, log logger.Logger) (*Store, error) {
	docs, err := jsonstore.New(filepath.Join(dataDir, "devices"))
	if err != nil {
		return nil, err
	}

	return &Store{
		docs:   docs,
		logger: log.WithComponent("devicestore"),
		now:    time.Now,
	}, nil
}

func defaultRecord(ip string) models.DeviceRecord {
	return models.DeviceRecord{
		DeviceIP:       ip,
		RecentChannels: []models.RecentChannel{},
	}
}

// Load returns the record for ip, or a zero-valued default when the
// document is missing or unreadable. Load never fails; tracking must
// degrade gracefully on store corruption.
func (s *Store) Load(ip string) models.DeviceRecord {
	var rec models.DeviceRecord

	if err := s.docs.Load(ip, &rec); err != nil {
		if err != jsonstore.ErrNotFound {
			s.logger.Warn().Str("ip", ip).Err(err).Msg("Unreadable device record, using default")
		}

		return defaultRecord(ip)
	}

	rec.DeviceIP = ip

	if rec.RecentChannels == nil {
		rec.RecentChannels = []models.RecentChannel{}
	}

	return rec
}

// Save persists the record atomically, forcing its ip to match the key.
func (s *Store) Save(ip string, rec models.DeviceRecord) error {
	rec.DeviceIP = ip

	return s.docs.Save(ip, rec)
}

// UpdateSeen stamps last-seen now, last-reachable too when reachable,
// and overwrites name/model only when non-empty values are supplied.
func (s *Store) UpdateSeen(ip string, reachable bool, name, model string) (models.DeviceRecord, error) {
	unlock := s.docs.Lock(ip)
	defer unlock()

	now := models.NewTimestamp(s.now())
	rec := s.Load(ip)

	rec.LastSeenTS = &now

	if reachable {
		rec.LastReachableTS = &now
	}

	if name != "" {
		rec.DeviceName = name
	}

	if model != "" {
		rec.DeviceModel = model
	}

	if err := s.Save(ip, rec); err != nil {
		return models.DeviceRecord{}, err
	}

	return rec, nil
}

// BumpRecent moves appID to the front of the recent-channel list,
// stamping it with now. Empty ids are a no-op. The list never exceeds
// MaxRecentChannels entries and never holds duplicate ids.
func (s *Store) BumpRecent(ip, appID, appName string) ([]models.RecentChannel, error) {
	if appID == "" {
		return []models.RecentChannel{}, nil
	}

	unlock := s.docs.Lock(ip)
	defer unlock()

	rec := s.Load(ip)
	rec.RecentChannels = bumped(rec.RecentChannels, appID, appName, models.NewTimestamp(s.now()))

	if err := s.Save(ip, rec); err != nil {
		return nil, err
	}

	return rec.RecentChannels, nil
}

func bumped(recent []models.RecentChannel, appID, appName string, now models.Timestamp) []models.RecentChannel {
	name := strings.TrimSpace(appName)
	if name == "" {
		name = appID
	}

	out := make([]models.RecentChannel, 0, len(recent)+1)
	out = append(out, models.RecentChannel{ID: appID, Name: name, LastOpened: now})

	for _, ch := range recent {
		if ch.ID == appID {
			continue
		}

		out = append(out, ch)
	}

	if len(out) > models.MaxRecentChannels {
		out = out[:models.MaxRecentChannels]
	}

	return out
}

// NoteActiveApp records the latest active-app observation. When the
// observation carries an id the recent list is bumped in the same
// persisted write.
func (s *Store) NoteActiveApp(ip string, app *models.ActiveApp) error {
	unlock := s.docs.Lock(ip)
	defer unlock()

	now := models.NewTimestamp(s.now())
	rec := s.Load(ip)

	rec.LastActiveApp = app
	rec.LastActiveSeenTS = &now

	if app != nil && app.ID != "" {
		rec.RecentChannels = bumped(rec.RecentChannels, app.ID, app.Name, now)
	}

	return s.Save(ip, rec)
}

// ListKnownDevices enumerates every persisted device document, skipping
// individually corrupt ones, most recently seen first.
func (s *Store) ListKnownDevices() []models.DeviceSummary {
	keys, err := s.docs.Keys()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list device documents")

		return []models.DeviceSummary{}
	}

	devices := make([]models.DeviceSummary, 0, len(keys))

	for _, key := range keys {
		var rec models.DeviceRecord

		if err := s.docs.Load(key, &rec); err != nil {
			s.logger.Debug().Str("key", key).Err(err).Msg("Skipping unreadable device document")

			continue
		}

		if rec.DeviceIP == "" {
			continue
		}

		devices = append(devices, models.DeviceSummary{
			IP:              rec.DeviceIP,
			Name:            rec.DeviceName,
			Model:           rec.DeviceModel,
			LastSeenTS:      rec.LastSeenTS,
			LastReachableTS: rec.LastReachableTS,
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		ti, tj := tsOrZero(devices[i].LastSeenTS), tsOrZero(devices[j].LastSeenTS)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}

		return devices[i].IP > devices[j].IP
	})

	return devices
}

func tsOrZero(ts *models.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}

	return ts.Time
}
