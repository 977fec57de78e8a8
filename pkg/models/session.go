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

const (
	// MaxLedgerSessions bounds the closed-session ledger per viewer.
	MaxLedgerSessions = 500
	// MaxViewSessions bounds the sessions returned by a user view.
	MaxViewSessions = 100
)

// ClosedSession is one finished watch session in a viewer's ledger.
type ClosedSession struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	StartTime   Timestamp `json:"start_time"`
	EndTime     Timestamp `json:"end_time"`
	DurationSec int64     `json:"duration_sec"`
}

// OpenSession is the at-most-one in-progress session for a viewer. Its
// duration is implied by now-StartTime and is never persisted.
type OpenSession struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	StartTime   Timestamp `json:"start_time"`
}

// UserWatchRecord is the durable per-(device, viewer) ledger.
type UserWatchRecord struct {
	BrowserID         string          `json:"browser_id"`
	Sessions          []ClosedSession `json:"sessions"`
	TotalWatchTimeSec int64           `json:"total_watch_time_sec"`
	Current           *OpenSession    `json:"current"`
	LastActiveAppID   string          `json:"last_active_app_id"`
	UpdatedTS         *Timestamp      `json:"updated_ts"`
}

// SessionDocument is the durable per-device document mapping viewer ids
// to their watch records.
type SessionDocument struct {
	DeviceIP string                      `json:"device_ip"`
	Users    map[string]*UserWatchRecord `json:"users"`
}

// WatchTotals are the rolling aggregates for a viewer.
type WatchTotals struct {
	TotalWatchTimeSec int64 `json:"total_watch_time_sec"`
	TodaySec          int64 `json:"today_sec"`
	WeekSec           int64 `json:"week_sec"`
	MonthSec          int64 `json:"month_sec"`
}

// UserWatchView is the computed read model for one viewer.
type UserWatchView struct {
	DeviceIP  string          `json:"device_ip"`
	UserID    string          `json:"user_id"`
	BrowserID string          `json:"browser_id"`
	Totals    WatchTotals     `json:"totals"`
	Current   *OpenSession    `json:"current"`
	Sessions  []ClosedSession `json:"sessions"`
	UpdatedTS *Timestamp      `json:"updated_ts"`
}
