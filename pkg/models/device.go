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

package models

// DeviceIdentity describes one Roku device as reported by its
// device-info query. Only IP is guaranteed; everything else is
// best-effort enrichment.
type DeviceIdentity struct {
	IP           string `json:"ip"`
	Name         string `json:"name,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ModelNumber  string `json:"model_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	UDN          string `json:"udn,omitempty"`
}

// Model returns the most specific model string available.
func (d DeviceIdentity) Model() string {
	if d.ModelName != "" {
		return d.ModelName
	}

	return d.ModelNumber
}

// AppSummary is one installed channel from the apps query.
type AppSummary struct {
	ID      string `json:"id"`
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
	Name    string `json:"name"`
}

// ActiveApp is the foreground channel reported by the active-app
// query. A nil *ActiveApp means nothing is active (home screen).
type ActiveApp struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// RecentChannel is one entry in a device's recently-opened list.
type RecentChannel struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastOpened Timestamp `json:"last_opened"`
}

// MaxRecentChannels bounds DeviceRecord.RecentChannels.
const MaxRecentChannels = 12

// DeviceRecord is the durable per-device document. Field names are the
// on-disk contract.
type DeviceRecord struct {
	DeviceIP         string          `json:"device_ip"`
	RecentChannels   []RecentChannel `json:"recent_channels"`
	LastActiveApp    *ActiveApp      `json:"last_active_app"`
	LastActiveSeenTS *Timestamp      `json:"last_active_seen_ts"`
	LastSeenTS       *Timestamp      `json:"last_seen_ts"`
	LastReachableTS  *Timestamp      `json:"last_reachable_ts"`
	DeviceName       string          `json:"device_name"`
	DeviceModel      string          `json:"device_model"`
}

// DeviceSummary is the listing shape for known devices.
type DeviceSummary struct {
	IP              string     `json:"ip"`
	Name            string     `json:"name"`
	Model           string     `json:"model"`
	LastSeenTS      *Timestamp `json:"last_seen_ts"`
	LastReachableTS *Timestamp `json:"last_reachable_ts"`
}
