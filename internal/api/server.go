// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the read-only stream status API and the retry/stop
// controls over HTTP and WebSocket.
package api

import (
	"context"
	"net/http"

	"github.com/ManuGH/livewatch/internal/api/middleware"
	"github.com/ManuGH/livewatch/internal/health"
	"github.com/ManuGH/livewatch/internal/history"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/supervisor"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Streams is the supervisor surface the API drives.
type Streams interface {
	Views() []playback.View
	Detail(id string) (supervisor.Detail, bool)
	Retry(id string) error
	Stop(id string) error
}

// History reads recorded transitions.
type History interface {
	Recent(ctx context.Context, cameraID string, limit int) ([]history.Event, error)
}

// Deps wires the server to the rest of the daemon.
type Deps struct {
	Streams Streams
	// History may be nil when the transition log is disabled.
	History History
	Health  *health.Manager
	Hub     *Hub
	// RateLimitRPS bounds /api requests per client IP. Zero disables the limit.
	RateLimitRPS int
	// TracingService enables otelhttp spans under that service name.
	TracingService string
}

// Server is the HTTP front of the daemon.
type Server struct {
	deps   Deps
	router chi.Router
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.router = s.routes()
	return s
}

var _ StreamsAPI = (*Server)(nil)

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.deps.TracingService,
		EnableLogging:         true,
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	contract := mustContract()
	r.Get("/api/openapi.yaml", serveOpenAPI)
	r.Get("/api/openapi.json", serveOpenAPIJSON(contract))

	b := streamBinder{api: s}
	r.Route("/api/streams", func(r chi.Router) {
		if s.deps.Hub != nil {
			r.Get("/ws", s.deps.Hub.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			if s.deps.RateLimitRPS > 0 {
				r.Use(middleware.APIRateLimit(s.deps.RateLimitRPS))
			}
			r.Use(validateRequests(contract))
			r.Get("/", b.listStreams)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(cameraScope)
				r.Get("/", b.getStream)
				r.Delete("/", b.stopStream)
				r.Post("/retry", b.retryStream)
				r.Get("/events", b.listStreamEvents)
			})
		})
	})
	return r
}

// cameraScope tags the request context with the addressed camera so every
// log line of the request carries it.
func cameraScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.ContextWithCameraID(r.Context(), chi.URLParam(r, "id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
