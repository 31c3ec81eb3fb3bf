package api

import (
	"net/http"
	"time"
)

// handleDiscovery runs a full SSDP search and reports what is known
// afterwards. Devices found are registered and start polling before the
// response is written.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	before := s.engine.Stats().Devices

	if err := s.engine.Discover(r.Context()); err != nil {
		s.logger.Warn("manual discovery failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "discovery failed: "+err.Error())
		return
	}

	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":      stats.Devices,
		"new_devices":  max(stats.Devices-before, 0),
		"online":       stats.Online,
		"pending":      stats.Pending,
		"completed_at": time.Now().UTC(),
	})
}

// handleListRecovery returns the identities awaiting re-discovery.
func (s *Server) handleListRecovery(w http.ResponseWriter, _ *http.Request) {
	pending := s.engine.PendingRecovery()
	if pending == nil {
		pending = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}
