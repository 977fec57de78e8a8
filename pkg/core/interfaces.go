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

package core

import (
	"context"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
)

// DeviceClient is the per-device control surface the service depends
// on. Satisfied by *ecp.Client; mocked in tests.
type DeviceClient interface {
	DeviceInfo(ctx context.Context) (models.DeviceIdentity, error)
	Apps(ctx context.Context) ([]models.AppSummary, error)
	ActiveApp(ctx context.Context) (*models.ActiveApp, error)
	Keypress(ctx context.Context, key string) error
	Keydown(ctx context.Context, key string) error
	Keyup(ctx context.Context, key string) error
	Launch(ctx context.Context, appID string) error
	Icon(ctx context.Context, appID string) ([]byte, string, error)
	DeviceIcon(ctx context.Context) ([]byte, string, error)
}

// ClientFactory builds a DeviceClient for one address and timeout.
type ClientFactory func(ip string, timeout time.Duration, log logger.Logger) (DeviceClient, error)

// DeviceDiscoverer runs one LAN discovery pass. A positive window
// overrides the discoverer's configured listen window.
type DeviceDiscoverer interface {
	Discover(ctx context.Context, window time.Duration) ([]models.DeviceIdentity, error)
}
