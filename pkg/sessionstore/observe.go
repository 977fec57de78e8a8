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

package sessionstore

import (
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/models"
)

// Observe applies one active-app observation to the viewer's state
// machine and persists the resulting document in a single atomic
// write. Returns the viewer id.
//
// Transitions:
//   - Idle + no app: no-op
//   - Idle + app: open a session at now
//   - Watching + no app: close the session at now
//   - Watching + same app: no-op (duration accrues at read time)
//   - Watching + different app: close then open, one write
func (s *Store) Observe(ip, browserID string, obs *models.ActiveApp, now time.Time) (string, error) {
	unlock := s.docs.Lock(ip)
	defer unlock()

	doc := s.Load(ip)
	id, user, _ := viewer(&doc, ip, browserID)

	var activeID, activeName string

	if obs != nil && obs.ID != "" {
		activeID = obs.ID

		activeName = obs.Name
		if activeName == "" {
			activeName = activeID
		}
	}

	var currentID string
	if user.Current != nil {
		currentID = user.Current.ChannelID
	}

	switch {
	case activeID == "":
		closeCurrent(user, now)
	case currentID == "":
		openCurrent(user, activeID, activeName, now)
	case activeID != currentID:
		closeCurrent(user, now)
		openCurrent(user, activeID, activeName, now)
	}

	user.LastActiveAppID = activeID

	ts := models.NewTimestamp(now)
	user.UpdatedTS = &ts

	if err := s.Save(ip, doc); err != nil {
		return "", err
	}

	return id, nil
}

func closeCurrent(user *models.UserWatchRecord, end time.Time) {
	cur := user.Current
	if cur == nil {
		return
	}

	start := cur.StartTime.Time
	if start.IsZero() {
		start = end
	}

	duration := end.Unix() - start.Unix()
	if duration < 0 {
		duration = 0
	}

	closed := models.ClosedSession{
		ChannelID:   cur.ChannelID,
		ChannelName: cur.ChannelName,
		StartTime:   cur.StartTime,
		EndTime:     models.NewTimestamp(end),
		DurationSec: duration,
	}

	user.Sessions = append([]models.ClosedSession{closed}, user.Sessions...)
	if len(user.Sessions) > models.MaxLedgerSessions {
		user.Sessions = user.Sessions[:models.MaxLedgerSessions]
	}

	user.TotalWatchTimeSec += duration
	user.Current = nil
}

func openCurrent(user *models.UserWatchRecord, channelID, channelName string, start time.Time) {
	user.Current = &models.OpenSession{
		ChannelID:   channelID,
		ChannelName: channelName,
		StartTime:   models.NewTimestamp(start),
	}
}
