// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlaybackAttempts counts connection attempts by the engine path that served them.
	PlaybackAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_playback_attempts_total",
		Help: "Total number of playback connection attempts by engine path",
	}, []string{"engine"})

	// PlaybackErrors counts escalated attempt errors by error class.
	PlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_playback_errors_total",
		Help: "Total number of escalated playback errors by class",
	}, []string{"class"})

	// PlaybackRetries counts automatic retries scheduled by the retry policy.
	PlaybackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_playback_retries_total",
		Help: "Total number of automatic playback retries scheduled",
	})

	// PlaybackManualRetries counts operator-triggered retries.
	PlaybackManualRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_playback_manual_retries_total",
		Help: "Total number of manual playback retries",
	})

	// PlaybackFailures counts sessions that reached the terminal failed state.
	PlaybackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_playback_failures_total",
		Help: "Total number of sessions that reached the failed state by reason",
	}, []string{"reason"})

	// PlaybackSessions tracks how many sessions currently sit in each state.
	PlaybackSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livewatch_playback_sessions",
		Help: "Number of playback sessions by state",
	}, []string{"state"})

	// PlaybackStartup tracks the time from attempt start to the first success signal.
	PlaybackStartup = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livewatch_playback_startup_seconds",
		Help:    "Time from attempt start to playable stream",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	}, []string{"engine"})

	// EngineRecoveries counts in-place engine recoveries that did not consume a retry slot.
	EngineRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_engine_recoveries_total",
		Help: "Total number of engine-level recoveries by kind",
	}, []string{"kind"})
)

// IncPlaybackAttempt records a new connection attempt.
func IncPlaybackAttempt(engine string) {
	PlaybackAttempts.WithLabelValues(engine).Inc()
}

// IncPlaybackError records an escalated attempt error.
func IncPlaybackError(class string) {
	PlaybackErrors.WithLabelValues(class).Inc()
}

// IncPlaybackRetry records a scheduled automatic retry.
func IncPlaybackRetry() {
	PlaybackRetries.Inc()
}

// IncPlaybackManualRetry records an operator retry.
func IncPlaybackManualRetry() {
	PlaybackManualRetries.Inc()
}

// IncPlaybackFailure records a terminal failure.
func IncPlaybackFailure(reason string) {
	PlaybackFailures.WithLabelValues(reason).Inc()
}

// ObservePlaybackStartup records the startup latency of a successful attempt.
func ObservePlaybackStartup(engine string, d time.Duration) {
	PlaybackStartup.WithLabelValues(engine).Observe(d.Seconds())
}

// IncEngineRecovery records an engine-level recovery action.
func IncEngineRecovery(kind string) {
	EngineRecoveries.WithLabelValues(kind).Inc()
}

// MoveSessionState moves one session between state buckets. Empty from/to
// means the session is being created or removed.
func MoveSessionState(from, to string) {
	if from == to {
		return
	}
	if from != "" {
		PlaybackSessions.WithLabelValues(from).Dec()
	}
	if to != "" {
		PlaybackSessions.WithLabelValues(to).Inc()
	}
}
