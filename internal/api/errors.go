// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/supervisor"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and writes it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, supervisor.ErrUnknownStream):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, playback.ErrSessionClosed):
		code, kind = http.StatusConflict, "session_closed"
	case errors.Is(err, playback.ErrNoSource):
		code, kind = http.StatusConflict, "no_source"
	case errors.Is(err, errHistoryDisabled):
		code, kind = http.StatusServiceUnavailable, "history_disabled"
	case errors.Is(err, errBadRequest):
		code, kind = http.StatusBadRequest, "bad_request"
	}

	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.error").
			Str(log.FieldPath, r.URL.Path).
			Msg("request failed")
	}

	writeJSON(w, code, errorResponse{
		Error:     kind,
		Detail:    err.Error(),
		RequestID: log.RequestIDFromContext(r.Context()),
		TraceID:   log.TraceIDFromContext(r.Context()),
	})
}
