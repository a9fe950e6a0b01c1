// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware provides the HTTP middleware stack of the API server.
package middleware

import (
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// StackConfig selects the ingress middleware.
type StackConfig struct {
	EnableSecurityHeaders bool
	CSP                   string // empty means DefaultCSP

	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the ingress middleware outermost first. Rate limiting
// is applied per route group by the server.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(chimw.Recoverer, chimw.RequestID)
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders(cfg.CSP))
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	// Innermost so the access line carries the request ID and full latency.
	if cfg.EnableLogging {
		r.Use(log.Middleware())
	}
}
