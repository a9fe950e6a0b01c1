// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type scopeKey struct{}

// scope carries the identifiers a request or session step logs with.
type scope struct {
	requestID string
	cameraID  string
}

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, fn func(*scope)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := scopeFrom(ctx)
	fn(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// ContextWithRequestID stores the request ID in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = id })
}

// ContextWithCameraID stores the camera a request targets in ctx.
func ContextWithCameraID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.cameraID = id })
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string { return scopeFrom(ctx).requestID }

// CameraIDFromContext returns the camera ID or "".
func CameraIDFromContext(ctx context.Context) string { return scopeFrom(ctx).cameraID }

// TraceIDFromContext returns the active trace ID or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// WithContext adds the request, camera and trace IDs found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	s := scopeFrom(ctx)
	traceID := TraceIDFromContext(ctx)
	if s == (scope{}) && traceID == "" {
		return logger
	}
	b := logger.With()
	if s.requestID != "" {
		b = b.Str(FieldRequestID, s.requestID)
	}
	if s.cameraID != "" {
		b = b.Str(FieldCameraID, s.cameraID)
	}
	if traceID != "" {
		b = b.Str(FieldTraceID, traceID)
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent enriched by WithContext.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
