// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueDropped counts views the supervisor could not hand to its fan-out
// queue because the dispatcher fell behind.
var QueueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livewatch_fanout_dropped_total",
	Help: "Views dropped before fan-out because the queue was full",
}, []string{"topic"})

// IncQueueDrop records a view dropped on topic.
func IncQueueDrop(topic string) {
	QueueDropped.WithLabelValues(topic).Inc()
}
