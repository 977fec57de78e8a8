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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/config"
	"github.com/zrocontrol/zrocontrol/pkg/core"
	"github.com/zrocontrol/zrocontrol/pkg/core/api"
	"github.com/zrocontrol/zrocontrol/pkg/devicestore"
	"github.com/zrocontrol/zrocontrol/pkg/discovery"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/sessionstore"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to controller config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	lg, err := logger.New(logCfg)
	if err != nil {
		return err
	}

	devices, err := devicestore.New(cfg.DataDir, lg)
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}

	sessions, err := sessionstore.New(cfg.DataDir, lg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	disc := discovery.New(lg)
	disc.Timeout = time.Duration(cfg.DiscoveryTimeoutSec * float64(time.Second))
	disc.InfoTimeout = time.Duration(cfg.InfoTimeoutSec * float64(time.Second))

	service := core.NewService(devices, sessions, disc, nil, lg)
	server := api.NewServer(service, lg)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		lg.Info().Str("addr", cfg.ListenAddr).Str("data_dir", cfg.DataDir).Msg("Controller API listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
