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

// Package api provides the HTTP JSON API for the controller. It is
// thin glue over pkg/core: no state of its own beyond the browser
// identity cookie.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/zrocontrol/zrocontrol/pkg/core"
	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	srhttp "github.com/zrocontrol/zrocontrol/pkg/http"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
)

const (
	// BrowserIDCookie carries the opaque per-browser identity.
	BrowserIDCookie = "zrocontrol_bid"

	browserIDMaxAge = 365 * 24 * 60 * 60
)

// Server routes API requests into the core service.
type Server struct {
	service *core.Service
	router  *mux.Router
	logger  logger.Logger
}

func NewServer(service *core.Service, log logger.Logger) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  log.WithComponent("api"),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(srhttp.CommonMiddleware(s.logger))

	s.router.HandleFunc("/api/devices", s.handleKnownDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/discover", s.handleDiscover).Methods(http.MethodGet)
	s.router.HandleFunc("/api/device-info", s.handleDeviceInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/api/apps", s.handleApps).Methods(http.MethodGet)
	s.router.HandleFunc("/api/active-app", s.handleActiveApp).Methods(http.MethodGet)
	s.router.HandleFunc("/api/recent-channels", s.handleRecentChannels).Methods(http.MethodGet)
	s.router.HandleFunc("/api/user-data", s.handleUserData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/reachable", s.handleReachable).Methods(http.MethodGet)
	s.router.HandleFunc("/api/keypress", s.handleKeypress).Methods(http.MethodPost)
	s.router.HandleFunc("/api/launch", s.handleLaunch).Methods(http.MethodPost)
	s.router.HandleFunc("/api/icon/{appID}", s.handleIcon).Methods(http.MethodGet)
	s.router.HandleFunc("/api/device-icon", s.handleDeviceIcon).Methods(http.MethodGet)
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// browserID returns the request's browser identity, issuing and
// setting a fresh cookie when absent. The value is opaque to the core.
func (s *Server) browserID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(BrowserIDCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	http.SetCookie(w, &http.Cookie{
		Name:     BrowserIDCookie,
		Value:    id,
		MaxAge:   browserIDMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})

	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ecp.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, ecp.ErrProtocol):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]interface{}{"ok": false, "error": err.Error()})
}

func missingIP(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "missing ip"})
}
