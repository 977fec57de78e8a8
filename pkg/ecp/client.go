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

// Package ecp implements a client for Roku's External Control Protocol,
// a plain-HTTP API on port 8060 of each device.
package ecp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
)

const (
	// ControlPort is the fixed ECP control port on every Roku device.
	ControlPort = 8060

	defaultTimeout = 3 * time.Second

	defaultIconType = "image/png"
)

// Client issues ECP queries and commands against one device. Each call
// is a single blocking request/response bounded by the client timeout.
type Client struct {
	ip     string
	base   string
	client *http.Client
	logger logger.Logger
}

// NewClient validates ip and returns a client for it. Malformed
// addresses wrap ErrInvalidAddress.
func NewClient(ip string, timeout time.Duration, log logger.Logger) (*Client, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	canonical := addr.String()

	return &Client{
		ip:     canonical,
		base:   "http://" + net.JoinHostPort(canonical, strconv.Itoa(ControlPort)),
		client: &http.Client{Timeout: timeout},
		logger: log.WithComponent("ecp"),
	}, nil
}

// IP returns the canonical textual address the client talks to.
func (c *Client) IP() string {
	return c.ip
}

func (c *Client) get(ctx context.Context, path string) ([]byte, string, error) {
	url := c.base + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building GET %s: %w", ErrProtocol, url, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: GET %s: %w", ErrProtocol, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("%w: GET %s: unexpected status %d", ErrProtocol, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: GET %s: reading body: %w", ErrProtocol, url, err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) post(ctx context.Context, path string) error {
	url := c.base + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: building POST %s: %w", ErrProtocol, url, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %w", ErrProtocol, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: POST %s: unexpected status %d", ErrProtocol, url, resp.StatusCode)
	}

	return nil
}

type deviceInfoXML struct {
	UserDeviceName     string `xml:"user-device-name"`
	FriendlyDeviceName string `xml:"friendly-device-name"`
	ModelName          string `xml:"model-name"`
	ModelNumber        string `xml:"model-number"`
	SerialNumber       string `xml:"serial-number"`
	UDN                string `xml:"udn"`
}

type appXML struct {
	ID      string `xml:"id,attr"`
	Type    string `xml:"type,attr"`
	Version string `xml:"version,attr"`
	Name    string `xml:",chardata"`
}

type appsXML struct {
	Apps []appXML `xml:"app"`
}

type activeAppXML struct {
	App *appXML `xml:"app"`
}

// DeviceInfo queries /query/device-info. Missing fields map to empty
// strings; malformed XML or transport failure wraps ErrProtocol.
func (c *Client) DeviceInfo(ctx context.Context) (models.DeviceIdentity, error) {
	body, _, err := c.get(ctx, "/query/device-info")
	if err != nil {
		return models.DeviceIdentity{}, err
	}

	var info deviceInfoXML
	if err := xml.Unmarshal(body, &info); err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("%w: parsing device-info: %w", ErrProtocol, err)
	}

	name := strings.TrimSpace(info.UserDeviceName)
	if name == "" {
		name = strings.TrimSpace(info.FriendlyDeviceName)
	}

	return models.DeviceIdentity{
		IP:           c.ip,
		Name:         name,
		ModelName:    strings.TrimSpace(info.ModelName),
		ModelNumber:  strings.TrimSpace(info.ModelNumber),
		SerialNumber: strings.TrimSpace(info.SerialNumber),
		UDN:          strings.TrimSpace(info.UDN),
	}, nil
}

// Apps queries /query/apps. Entries without an id attribute are
// skipped; the result is sorted case-insensitively by name, ties kept
// in document order.
func (c *Client) Apps(ctx context.Context) ([]models.AppSummary, error) {
	body, _, err := c.get(ctx, "/query/apps")
	if err != nil {
		return nil, err
	}

	var doc appsXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing apps: %w", ErrProtocol, err)
	}

	apps := make([]models.AppSummary, 0, len(doc.Apps))

	for _, a := range doc.Apps {
		if a.ID == "" {
			continue
		}

		apps = append(apps, models.AppSummary{
			ID:      a.ID,
			Type:    a.Type,
			Version: a.Version,
			Name:    strings.TrimSpace(a.Name),
		})
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})

	return apps, nil
}

// ActiveApp queries /query/active-app. Returns nil when no app element
// is present. The returned observation may carry an empty ID (home
// screen reports a bare screensaver-style element).
func (c *Client) ActiveApp(ctx context.Context) (*models.ActiveApp, error) {
	body, _, err := c.get(ctx, "/query/active-app")
	if err != nil {
		return nil, err
	}

	var doc activeAppXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing active-app: %w", ErrProtocol, err)
	}

	if doc.App == nil {
		return nil, nil
	}

	return &models.ActiveApp{
		ID:   doc.App.ID,
		Name: strings.TrimSpace(doc.App.Name),
	}, nil
}

// Keypress sends a fire-and-forget key press. Success is HTTP 2xx.
func (c *Client) Keypress(ctx context.Context, key string) error {
	return c.post(ctx, "/keypress/"+key)
}

// Keydown sends the press half of a key event.
func (c *Client) Keydown(ctx context.Context, key string) error {
	return c.post(ctx, "/keydown/"+key)
}

// Keyup sends the release half of a key event.
func (c *Client) Keyup(ctx context.Context, key string) error {
	return c.post(ctx, "/keyup/"+key)
}

// Launch starts the given channel in the foreground.
func (c *Client) Launch(ctx context.Context, appID string) error {
	return c.post(ctx, "/launch/"+appID)
}

// Icon fetches a channel icon as raw bytes with its content type,
// defaulting to image/png when the device omits the header.
func (c *Client) Icon(ctx context.Context, appID string) ([]byte, string, error) {
	body, contentType, err := c.get(ctx, "/query/icon/"+appID)
	if err != nil {
		return nil, "", err
	}

	if contentType == "" {
		contentType = defaultIconType
	}

	return body, contentType, nil
}

// DeviceIcon fetches the device's own icon (app id 0).
func (c *Client) DeviceIcon(ctx context.Context) ([]byte, string, error) {
	return c.Icon(ctx, "0")
}
