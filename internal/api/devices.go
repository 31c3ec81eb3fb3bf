package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-media/internal/media"
)

// deviceView is the JSON form of a device. Sub-statuses that have never
// been read are omitted.
type deviceView struct {
	ID    string      `json:"id"`
	Class media.Class `json:"class"`
	Name  string      `json:"name,omitempty"`
	Model string      `json:"model,omitempty"`
	Host  string      `json:"host"`
	Port  int         `json:"port"`

	Availability   string         `json:"availability"`
	Power          string         `json:"power,omitempty"`
	MediaStatus    string         `json:"media_status,omitempty"`
	PlaybackStatus string         `json:"playback_status,omitempty"`
	CurrentApp     string         `json:"current_app,omitempty"`
	CurrentAppID   string         `json:"current_app_id,omitempty"`
	AppPresets     []media.Preset `json:"app_presets"`

	PollState           string     `json:"poll_state"`
	PollIntervalSeconds float64    `json:"poll_interval_seconds"`
	Failures            int        `json:"consecutive_failures"`
	PendingRecovery     bool       `json:"pending_recovery"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
	LastCommandAt       *time.Time `json:"last_command_at,omitempty"`
	RegisteredAt        time.Time  `json:"registered_at"`
}

func (s *Server) viewOf(rec media.Record, pending map[string]bool) deviceView {
	v := deviceView{
		ID:                  rec.ID,
		Class:               rec.Class,
		Name:                rec.Name,
		Model:               rec.Model,
		Host:                rec.Location.Host,
		Port:                rec.Location.Port,
		Availability:        media.AvailabilityOffline,
		AppPresets:          rec.Presets,
		PollIntervalSeconds: rec.PollInterval.Seconds(),
		Failures:            rec.Failures,
		PendingRecovery:     pending[rec.ID],
		RegisteredAt:        rec.RegisteredAt,
	}
	if rec.Online {
		v.Availability = media.AvailabilityOnline
	}
	if media.Observed(rec.Power) {
		v.Power = rec.Power
	}
	if media.Observed(rec.Media) {
		v.MediaStatus = rec.Media
		if pb, ok := media.PlaybackFor(rec.Media); ok {
			v.PlaybackStatus = pb
		}
	}
	if media.Observed(rec.App) {
		v.CurrentApp = rec.App
		v.CurrentAppID = rec.AppID
	}
	if v.AppPresets == nil {
		v.AppPresets = []media.Preset{}
	}
	if !rec.LastSeenAt.IsZero() {
		t := rec.LastSeenAt
		v.LastSeenAt = &t
	}
	if !rec.LastCommandAt.IsZero() {
		t := rec.LastCommandAt
		v.LastCommandAt = &t
	}
	v.PollState = media.StateIdle.String()
	if st, ok := s.engine.SessionState(rec.ID); ok {
		v.PollState = st.String()
	}
	return v
}

func (s *Server) pendingSet() map[string]bool {
	ids := s.engine.PendingRecovery()
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// handleListDevices returns every known device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records := s.engine.Devices()
	pending := s.pendingSet()

	class := media.Class(r.URL.Query().Get("class"))
	views := make([]deviceView, 0, len(records))
	for _, rec := range records {
		if class != "" && rec.Class != class {
			continue
		}
		views = append(views, s.viewOf(rec, pending))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.engine.Device(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(rec, s.pendingSet()))
}

// handleDeleteDevice forgets a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.RemoveDevice(r.Context(), id); err != nil {
		if errors.Is(err, media.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("removing device failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to remove device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commandRequest is the body of POST /devices/{id}/commands.
type commandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// commandResponse reports the outcome of a command.
type commandResponse struct {
	CommandID string          `json:"command_id"`
	DeviceID  string          `json:"device_id"`
	Command   string          `json:"command"`
	Status    media.AckStatus `json:"status"`
}

// handleDeviceCommand parses and executes a device command. The request
// returns once the device has accepted the key or launch; state changes
// arrive through events.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	cmd, err := media.ParseCommand(req.Command, req.Parameters)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	commandID := uuid.NewString()
	if err := s.engine.Execute(ctx, id, cmd); err != nil {
		status, ackErr := media.AckFor(err)
		s.logger.Info("command not accepted",
			"command_id", commandID,
			"device_id", id,
			"command", cmd.Name(),
			"status", status,
			"error", err,
		)
		writeError(w, httpStatusFor(ackErr.Code), ackErr.Code, ackErr.Message)
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{
		CommandID: commandID,
		DeviceID:  id,
		Command:   cmd.Name(),
		Status:    media.AckAccepted,
	})
}

// httpStatusFor maps an ack error code to an HTTP status.
func httpStatusFor(code string) int {
	switch code {
	case media.ErrCodeDeviceNotFound:
		return http.StatusNotFound
	case media.ErrCodeDeviceOffline:
		return http.StatusConflict
	case media.ErrCodeInvalidCommand, media.ErrCodeUnsupportedCommand, media.ErrCodeUnknownPreset:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// Limits for history queries.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleDeviceHistory returns recorded events for a device, newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history not available")
		return
	}

	id := chi.URLParam(r, "id")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading history failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []media.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}
