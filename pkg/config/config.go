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

// Package config loads the controller daemon configuration from a JSON
// file with environment fallbacks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zrocontrol/zrocontrol/pkg/logger"
)

var errEmptyDataDir = errors.New("data_dir must not be empty")

type Config struct {
	// ListenAddr is the API bind address, host:port.
	ListenAddr string `json:"listen_addr"`
	// DataDir is the durable store root; devices/ and sessions/ live
	// under it.
	DataDir string `json:"data_dir"`
	// DiscoveryTimeoutSec bounds one discovery listen window.
	DiscoveryTimeoutSec float64 `json:"discovery_timeout_sec"`
	// InfoTimeoutSec bounds each discovery enrichment query.
	InfoTimeoutSec float64 `json:"info_timeout_sec"`

	Logging *logger.Config `json:"logging,omitempty"`
}

func Default() Config {
	return Config{
		ListenAddr:          getEnvOrDefault("ZROCONTROL_LISTEN", "127.0.0.1:5000"),
		DataDir:             getEnvOrDefault("ZROCONTROL_DATA_DIR", "data"),
		DiscoveryTimeoutSec: 2.0,
		InfoTimeoutSec:      1.0,
	}
}

// Load reads path into a Config on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config %q: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errEmptyDataDir
	}

	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:5000"
	}

	if c.DiscoveryTimeoutSec <= 0 {
		c.DiscoveryTimeoutSec = 2.0
	}

	if c.InfoTimeoutSec <= 0 {
		c.InfoTimeoutSec = 1.0
	}

	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
