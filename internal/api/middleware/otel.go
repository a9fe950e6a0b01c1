// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const streamsPrefix = "/api/streams/"

// OTelHTTP opens one server span per API request and joins incoming traces.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithSpanOptions(trace.WithAttributes(semconv.ServiceName(serviceName))),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

// shouldTrace skips probes, scrapes and the long-lived WebSocket.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics", streamsPrefix + "ws":
		return false
	}
	return true
}

// spanName names spans after the route so camera IDs do not explode span
// cardinality: "GET /api/streams/{id}/retry".
func spanName(_ string, r *http.Request) string {
	return r.Method + " " + routeOf(r.URL.Path)
}

func routeOf(path string) string {
	rest, ok := strings.CutPrefix(path, streamsPrefix)
	if !ok || rest == "" {
		return path
	}
	_, action, hasAction := strings.Cut(rest, "/")
	if !hasAction || action == "" {
		return streamsPrefix + "{id}"
	}
	return streamsPrefix + "{id}/" + action
}
