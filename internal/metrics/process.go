// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_proc_terminate_total",
		Help: "Signals sent to child process groups by signal and result",
	}, []string{"signal", "result"})

	procExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_proc_exit_total",
		Help: "Child process exits by outcome",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal sent to a process group.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcExit records how a child process exited.
func IncProcExit(outcome string) {
	procExitTotal.WithLabelValues(outcome).Inc()
}
