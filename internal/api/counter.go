package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-counter/internal/bridges/counter"
	"github.com/nerrad567/gray-logic-counter/internal/device"
)

// resetRequest is the body of POST /counter/reset.
type resetRequest struct {
	Scope string `json:"scope"`
}

// enabledRequest is the body of PUT /counter/enabled.
type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleGetState returns the live counter record.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.live.Get(r.Context(), s.deviceID)
	if errors.Is(err, device.ErrLiveStateNotFound) {
		writeNotFound(w, "no reading recorded yet")
		return
	}
	if err != nil {
		s.logger.Error("reading live state", "error", err)
		writeInternalError(w, "failed to read live state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetHistory returns recent samples, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.GetHistory(r.Context(), s.deviceID, limit)
	if err != nil {
		s.logger.Error("reading counter history", "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if records == nil {
		records = []device.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": s.deviceID,
		"records":   records,
		"count":     len(records),
	})
}

// handleReset queues a reset and waits for the device to take it.
// An empty body resets everything.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Scope == "" {
		req.Scope = counter.ResetAll.String()
	}

	scope, err := counter.ParseResetScope(req.Scope)
	if err != nil {
		writeBadRequest(w, "scope must be one of current, entries, exits, all")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), resetTimeout)
	defer cancel()

	if err := s.queue.SubmitReset(ctx, scope); err != nil {
		s.logger.Warn("counter reset failed", "scope", scope.String(), "error", err)
		s.writeDeviceError(w, err)
		return
	}

	s.logger.Info("counter reset", "scope", scope.String(), "request_id", requestID(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reset",
		"scope":  scope.String(),
	})
}

// writeDeviceError maps access queue and codec failures to HTTP statuses.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, counter.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "counter bridge is shutting down")
	case errors.Is(err, counter.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeDeviceTimeout, "people counter did not respond")
	default:
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, "people counter unreachable: "+counter.AckErrorCode(err))
	}
}

// handleQueue reports access queue and serial codec diagnostics.
func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"queue": s.queue.Diagnostics(),
	}
	if s.codec != nil {
		resp["codec"] = s.codec.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetEnabled reports whether polling is switched on.
func (s *Server) handleGetEnabled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"enabled": s.flag.IsFeatureEnabled(r.Context()),
	})
}

// handleSetEnabled switches polling on or off. The poller picks the change
// up on its next tick.
func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeBadRequest(w, `body must be {"enabled": true|false}`)
		return
	}

	if err := s.flag.SetEnabled(r.Context(), *req.Enabled); err != nil {
		s.logger.Error("storing feature flag", "error", err)
		writeInternalError(w, "failed to store setting")
		return
	}

	s.logger.Info("counter polling toggled", "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}
