// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livewatch_breaker_state",
		Help: "Dependency breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"dependency"})

	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_breaker_trips_total",
		Help: "Times a dependency breaker opened",
	}, []string{"dependency", "reason"})

	BreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_breaker_rejected_total",
		Help: "Calls short-circuited by an open breaker",
	}, []string{"dependency"})
)

var breakerStateValues = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// SetBreakerState records the state of a dependency breaker.
func SetBreakerState(dependency, state string) {
	BreakerState.WithLabelValues(dependency).Set(breakerStateValues[state])
}

// IncBreakerTrip counts a breaker opening.
func IncBreakerTrip(dependency, reason string) {
	BreakerTrips.WithLabelValues(dependency, reason).Inc()
}

// IncBreakerRejected counts a call refused while the breaker was open.
func IncBreakerRejected(dependency string) {
	BreakerRejected.WithLabelValues(dependency).Inc()
}
