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

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) handleKnownDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.service.Devices().ListKnownDevices()

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "devices": devices})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	// The query timeout replaces the configured listen window for this
	// request, shorter or longer.
	var window time.Duration

	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			window = time.Duration(secs * float64(time.Second))
		}
	}

	devices, err := s.service.DiscoverAndRecord(r.Context(), window)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "devices": devices})
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	client, err := s.service.Client(ip)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := client.DeviceInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "device": info})
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	client, err := s.service.Client(ip)
	if err != nil {
		writeError(w, err)
		return
	}

	apps, err := client.Apps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "apps": apps})
}

func (s *Server) handleActiveApp(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	active, err := s.service.PollActiveApp(r.Context(), ip, s.browserID(w, r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "active": active})
}

func (s *Server) handleRecentChannels(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	rec := s.service.Devices().Load(ip)

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "recent_channels": rec.RecentChannels})
}

func (s *Server) handleUserData(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	browserID := s.browserID(w, r)

	if r.URL.Query().Get("refresh") == "1" {
		// Best-effort refresh; the view below reflects whatever the
		// poll managed to record.
		if _, err := s.service.PollActiveApp(r.Context(), ip, browserID); err != nil {
			s.logger.Debug().Str("ip", ip).Err(err).Msg("Refresh poll failed")
		}
	}

	view, err := s.service.UserView(ip, browserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "data": view})
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	rec, info, reachable, err := s.service.CheckReachable(r.Context(), ip)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"ok":                true,
		"reachable":         reachable,
		"last_seen_ts":      rec.LastSeenTS,
		"last_reachable_ts": rec.LastReachableTS,
	}

	if reachable {
		resp["name"] = info.Name
		resp["model"] = info.Model()
	}

	writeJSON(w, http.StatusOK, resp)
}

type keypressRequest struct {
	IP  string `json:"ip"`
	Key string `json:"key"`
}

func (s *Server) handleKeypress(w http.ResponseWriter, r *http.Request) {
	var req keypressRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		missingIP(w)
		return
	}

	client, err := s.service.FastClient(req.IP)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := client.Keypress(r.Context(), req.Key); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type launchRequest struct {
	IP      string `json:"ip"`
	AppID   string `json:"app_id"`
	AppName string `json:"app_name"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		missingIP(w)
		return
	}

	if err := s.service.LaunchChannel(r.Context(), req.IP, req.AppID, req.AppName); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	client, err := s.service.Client(ip)
	if err != nil {
		writeError(w, err)
		return
	}

	icon, contentType, err := client.Icon(r.Context(), mux.Vars(r)["appID"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)

	_, _ = w.Write(icon)
}

func (s *Server) handleDeviceIcon(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		missingIP(w)
		return
	}

	client, err := s.service.FastClient(ip)
	if err != nil {
		writeError(w, err)
		return
	}

	icon, contentType, err := client.DeviceIcon(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)

	_, _ = w.Write(icon)
}
