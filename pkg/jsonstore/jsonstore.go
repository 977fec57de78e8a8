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

// Package jsonstore persists one JSON document per key as a file,
// writing through a same-directory temp file renamed into place so a
// crash mid-write never leaves a torn document.
package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("document not found")

// Store is a directory of JSON documents keyed by sanitized key name.
// Same-key read-modify-write sequences within one process are
// serialized via Lock; cross-process access stays last-writer-wins.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %q: %w", dir, err)
	}

	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// SanitizeKey maps a device address to a filesystem-safe key. Colons in
// IPv6 addresses become underscores, matching the on-disk contract.
func SanitizeKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, SanitizeKey(key)+".json")
}

// Lock serializes in-process read-modify-write cycles for one key. The
// returned func releases the lock.
func (s *Store) Lock(key string) func() {
	s.mu.Lock()

	km, ok := s.locks[SanitizeKey(key)]
	if !ok {
		km = &sync.Mutex{}
		s.locks[SanitizeKey(key)] = km
	}

	s.mu.Unlock()

	km.Lock()

	return km.Unlock
}

// Load reads the document for key into dst. Returns ErrNotFound when no
// document exists; other errors indicate an unreadable or corrupt file.
func (s *Store) Load(key string, dst interface{}) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}

		return fmt.Errorf("failed to read document %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal document %q: %w", key, err)
	}

	return nil
}

// Save writes the document for key atomically: marshal, write to a temp
// file in the same directory, fsync, rename over the target.
func (s *Store) Save(key string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %q: %w", key, err)
	}

	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, SanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %q: %w", key, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write temp file for %q: %w", key, err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to sync temp file for %q: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close temp file for %q: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to replace document %q: %w", key, err)
	}

	return nil
}

// Keys lists the sanitized keys of all persisted documents, sorted by
// filename.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory %q: %w", s.dir, err)
	}

	keys := make([]string, 0, len(entries))

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}

	return keys, nil
}
