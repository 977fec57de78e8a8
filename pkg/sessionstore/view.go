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

// UserView computes the viewer's rolling aggregates: the ledger total
// plus window sums for today (since local midnight), week (midnight
// minus 6 days), and month (midnight minus 29 days). Window bounds are
// inclusive of sessions starting exactly at the boundary, and an open
// session contributes its live elapsed time when it started in-window.
//
// A first view of an unknown viewer creates and persists their record.
func (s *Store) UserView(ip, browserID string, now time.Time) (models.UserWatchView, error) {
	unlock := s.docs.Lock(ip)
	defer unlock()

	doc := s.Load(ip)
	id, user, created := viewer(&doc, ip, browserID)

	if created {
		if err := s.Save(ip, doc); err != nil {
			return models.UserWatchView{}, err
		}
	}

	midnight := localMidnight(now)

	view := models.UserWatchView{
		DeviceIP:  ip,
		UserID:    id,
		BrowserID: browserID,
		Totals: models.WatchTotals{
			TotalWatchTimeSec: user.TotalWatchTimeSec,
			TodaySec:          sumSince(user, midnight, now),
			WeekSec:           sumSince(user, midnight.AddDate(0, 0, -6), now),
			MonthSec:          sumSince(user, midnight.AddDate(0, 0, -29), now),
		},
		Current:   user.Current,
		UpdatedTS: user.UpdatedTS,
	}

	n := len(user.Sessions)
	if n > models.MaxViewSessions {
		n = models.MaxViewSessions
	}

	view.Sessions = append([]models.ClosedSession{}, user.Sessions[:n]...)

	return view, nil
}

func localMidnight(now time.Time) time.Time {
	y, m, d := now.Local().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func sumSince(user *models.UserWatchRecord, start, now time.Time) int64 {
	var acc int64

	for _, sess := range user.Sessions {
		if sess.StartTime.Before(start) {
			continue
		}

		acc += sess.DurationSec
	}

	if cur := user.Current; cur != nil && !cur.StartTime.Before(start) {
		elapsed := now.Unix() - cur.StartTime.Unix()
		if elapsed > 0 {
			acc += elapsed
		}
	}

	return acc
}
