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

// Package sessionstore turns a stream of active-app observations into
// per-viewer watch sessions with durable, atomically persisted ledgers.
//
// Each viewer is a two-state machine: Idle (no current session) and
// Watching (one open session). A channel change closes and reopens in
// the same persisted write, so no intermediate all-idle state is ever
// durably observable.
package sessionstore

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/zrocontrol/zrocontrol/pkg/jsonstore"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
)

// ViewerID derives the stable viewer id for a (device, browser) pair.
// One-way: the browser identifier is not recoverable from the id.
func ViewerID(deviceKey, browserID string) string {
	sum := sha256.Sum256([]byte(deviceKey + "|" + browserID))

	return "u_" + hex.EncodeToString(sum[:])[:16]
}

// Store is a per-device session document store under
// <dataDir>/sessions.
type Store struct {
	docs   *jsonstore.Store
	logger logger.Logger
}

func New(dataDir string, log logger.Logger) (*Store, error) {
	docs, err := jsonstore.New(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return nil, err
	}

	return &Store{
		docs:   docs,
		logger: log.WithComponent("sessionstore"),
	}, nil
}

func defaultDocument(ip string) models.SessionDocument {
	return models.SessionDocument{
		DeviceIP: ip,
		Users:    make(map[string]*models.UserWatchRecord),
	}
}

// Load returns the session document for ip, or an empty default when
// missing or unreadable.
func (s *Store) Load(ip string) models.SessionDocument {
	var doc models.SessionDocument

	if err := s.docs.Load(ip, &doc); err != nil {
		if err != jsonstore.ErrNotFound {
			s.logger.Warn().Str("ip", ip).Err(err).Msg("Unreadable session document, using default")
		}

		return defaultDocument(ip)
	}

	doc.DeviceIP = ip

	if doc.Users == nil {
		doc.Users = make(map[string]*models.UserWatchRecord)
	}

	return doc
}

// Save persists the document atomically, forcing its ip to the key.
func (s *Store) Save(ip string, doc models.SessionDocument) error {
	doc.DeviceIP = ip

	return s.docs.Save(ip, doc)
}

// viewer returns the record for browserID, creating it when absent.
// The second return reports whether a new record was created.
func viewer(doc *models.SessionDocument, ip, browserID string) (string, *models.UserWatchRecord, bool) {
	id := ViewerID(ip, browserID)

	user, ok := doc.Users[id]
	created := !ok || user == nil

	if created {
		user = &models.UserWatchRecord{
			Sessions: []models.ClosedSession{},
		}
		doc.Users[id] = user
	}

	user.BrowserID = browserID

	return id, user, created
}
