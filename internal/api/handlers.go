// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/livewatch/internal/history"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/supervisor"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

var (
	errHistoryDisabled = errors.New("transition history is disabled")
	errBadRequest      = errors.New("bad request")
)

// listResponse wraps the stream list.
type listResponse struct {
	Streams []playback.View `json:"streams"`
}

// eventsResponse wraps recent transitions of one stream.
type eventsResponse struct {
	ID     string          `json:"id"`
	Events []history.Event `json:"events"`
}

// ListStreams writes every supervised view.
func (s *Server) ListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Streams: s.deps.Streams.Views()})
}

func (s *Server) GetStream(w http.ResponseWriter, r *http.Request, id string) {
	d, err := s.detail(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RetryStream resets the retry budget of id and reconnects it.
func (s *Server) RetryStream(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.deps.Streams.Retry(id); err != nil {
		writeError(w, r, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "api.retry").
		Msg("manual retry requested")
	s.writeDetail(w, r, http.StatusAccepted, id)
}

func (s *Server) StopStream(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.deps.Streams.Stop(id); err != nil {
		writeError(w, r, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "api.stop").
		Msg("stream stopped")
	s.writeDetail(w, r, http.StatusOK, id)
}

// ListStreamEvents writes the newest recorded transitions of id.
func (s *Server) ListStreamEvents(w http.ResponseWriter, r *http.Request, id string, params ListStreamEventsParams) {
	if _, err := s.detail(id); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.History == nil {
		writeError(w, r, errHistoryDisabled)
		return
	}

	limit := defaultEventLimit
	if params.Limit != nil {
		if *params.Limit <= 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(*params.Limit, maxEventLimit)
	}

	events, err := s.deps.History.Recent(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, fmt.Errorf("read history: %w", err))
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{ID: id, Events: events})
}

func (s *Server) detail(id string) (supervisor.Detail, error) {
	d, ok := s.deps.Streams.Detail(id)
	if !ok {
		return supervisor.Detail{}, fmt.Errorf("%w: %s", supervisor.ErrUnknownStream, id)
	}
	return d, nil
}

func (s *Server) writeDetail(w http.ResponseWriter, r *http.Request, code int, id string) {
	d, err := s.detail(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, d)
}
