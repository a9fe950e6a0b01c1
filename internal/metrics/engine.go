// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_engine_fetch_total",
		Help: "HTTP fetches issued by the streaming engine by resource and result",
	}, []string{"resource", "result"})

	sinkSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_sink_segments_total",
		Help: "Segments delivered to display sinks",
	})

	sinkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_sink_bytes_total",
		Help: "Bytes delivered to display sinks",
	})
)

// IncEngineFetch records one engine fetch. resource is manifest, level or
// segment; result is ok or error.
func IncEngineFetch(resource, result string) {
	engineFetches.WithLabelValues(resource, result).Inc()
}

// AddSinkSegment records a segment handed to a sink.
func AddSinkSegment(bytes int) {
	sinkSegments.Inc()
	sinkBytes.Add(float64(bytes))
}
