// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livewatch_http_request_duration_seconds",
		Help:    "API request latency by route and status",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route", "status"})

	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livewatch_http_response_size_bytes",
		Help:    "API response body size by route",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"method", "route"})

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_http_requests_in_flight",
		Help: "API requests currently being served",
	})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_ws_clients",
		Help: "Number of connected status WebSocket clients",
	})

	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_ws_dropped_messages_total",
		Help: "Status messages dropped because a client was too slow",
	})
)

// ObserveHTTPRequest records one finished API request. route is the chi
// pattern, never the raw path.
func ObserveHTTPRequest(method, route string, status, bytes int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	if bytes > 0 {
		HTTPResponseSize.WithLabelValues(method, route).Observe(float64(bytes))
	}
}

// SetWSClients records the current number of WebSocket clients.
func SetWSClients(n int) {
	wsClients.Set(float64(n))
}

// IncWSDropped records a message dropped for a slow client.
func IncWSDropped() {
	wsDropped.Inc()
}
