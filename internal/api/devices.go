package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
)

const (
	// defaultLogLimit is the number of command log entries returned without ?limit.
	defaultLogLimit = 20

	// maxLogLimit caps ?limit on the command log.
	maxLogLimit = 500
)

// handleListDevices returns the state of every known appliance.
//
// Query parameters:
//   - connection: filter by status category (CONNECTED, DISCONNECTED)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	connection := r.URL.Query().Get("connection")

	devices := s.store.Devices()
	states := make([]appliance.State, 0, len(devices))
	for _, dev := range devices {
		if connection != "" && dev.Connection() != connection {
			continue
		}
		states = append(states, dev.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": states, "count": len(states)})
}

// handleDiscover lists the account's appliances again and returns them.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Discover(r.Context())
	if err != nil {
		s.logger.Warn("appliance discovery failed", "error", err, "request_id", requestID(r.Context()))
		writeStoreError(w, err)
		return
	}

	infos := make([]appliance.Info, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, dev.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": infos, "count": len(infos)})
}

// handleGetDevice returns a single appliance's state. With ?refresh=true
// the state is reloaded from the remote API first.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := s.store.Refresh(r.Context(), dev); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, dev.Snapshot())
}

// handleGetStateValue resolves one key over the merged state, e.g.
// "machMode", "statistics.totalWashCycle" or "startProgram.temp".
func (s *Server) handleGetStateValue(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	value, found := dev.Get(key)
	if !found {
		writeNotFound(w, "key not found: "+key)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mac": dev.MAC(), "key": key, "value": value})
}

// handleGetSettings returns every changeable setting as "<command>.<key>".
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.store.LoadCommandsIfNeeded(r.Context(), dev); err != nil {
		writeStoreError(w, err)
		return
	}

	settings := dev.Settings()
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]ParameterView, 0, len(keys))
	for _, key := range keys {
		view := newParameterView(settings[key])
		view.Key = key
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"mac": dev.MAC(), "settings": out})
}

// handleCommandLog returns the most recent dispatched commands for an appliance.
//
// Query parameters:
//   - limit: number of entries (default 20, max 500)
func (s *Server) handleCommandLog(w http.ResponseWriter, r *http.Request) {
	if s.commandLog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command log not configured")
		return
	}

	mac := chi.URLParam(r, "mac")
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries, err := s.commandLog.Recent(r.Context(), mac, limit)
	if err != nil {
		s.logger.Error("reading command log failed", "error", err, "mac", mac)
		writeInternalError(w, "failed to read command log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mac": mac, "entries": entries, "count": len(entries)})
}

// lookup resolves the {mac} URL parameter, writing a 404 when the
// appliance is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*appliance.Device, bool) {
	mac := chi.URLParam(r, "mac")
	dev, err := s.store.Device(mac)
	if err != nil {
		if errors.Is(err, appliance.ErrDeviceNotFound) {
			writeNotFound(w, "appliance not found: "+mac)
			return nil, false
		}
		writeStoreError(w, err)
		return nil, false
	}
	return dev, true
}
