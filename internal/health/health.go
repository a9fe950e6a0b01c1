// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health serves the liveness and readiness probes of the daemon.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/playback"
)

// Status of a component or of the whole daemon.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the /readyz body.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates checkers. Register all checkers before serving.
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

// NewManager creates a manager reporting version.
func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now()}
}

// RegisterChecker adds a checker.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// runChecks runs every checker concurrently and returns the results with
// the worst status among them.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	results := make([]CheckResult, len(m.checkers))
	var wg sync.WaitGroup
	for i, c := range m.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(results))
	overall := StatusHealthy
	for i, c := range m.checkers {
		checks[c.Name()] = results[i]
		overall = worse(overall, results[i].Status)
	}
	return checks, overall
}

// Health is the liveness view. The process is alive whenever it can answer;
// verbose adds the component checks and folds them into Status.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(m.started).Seconds()),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready is the readiness view. Any unhealthy component makes the daemon
// unready; degraded components do not.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{Ready: true, Status: StatusHealthy, Timestamp: time.Now()}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

// ServeHealth answers the liveness probe. It is always 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	writeProbe(w, r, "health", http.StatusOK, resp.Status, resp)
}

// ServeReady answers the readiness probe with 503 while unready.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeProbe(w, r, "readiness", code, resp.Status, resp)
}

func writeProbe(w http.ResponseWriter, r *http.Request, probe string, code int, status Status, body any) {
	logger := log.WithComponentFromContext(r.Context(), probe)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, probe+".encode_error").Msg("failed to encode probe response")
		return
	}
	logger.Debug().
		Str(log.FieldEvent, probe+".checked").
		Str("status", string(status)).
		Int("code", code).
		Msg("probe answered")
}

// PingChecker wraps a connectivity probe such as a database ping.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker creates a checker that is unhealthy when ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// NewOptionalPingChecker creates a checker that only degrades when ping fails.
func NewOptionalPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: true}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// StreamsChecker summarizes playback sessions. Failed streams degrade the
// service but never make it unready: they wait for a manual retry.
type StreamsChecker struct {
	views func() []playback.View
}

// NewStreamsChecker creates a checker over the current views.
func NewStreamsChecker(views func() []playback.View) *StreamsChecker {
	return &StreamsChecker{views: views}
}

func (c *StreamsChecker) Name() string {
	return "streams"
}

func (c *StreamsChecker) Check(ctx context.Context) CheckResult {
	views := c.views()
	if len(views) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "no streams configured"}
	}

	playing, failed := 0, 0
	for _, v := range views {
		switch v.State {
		case playback.ViewPlaying:
			playing++
		case playback.ViewFailed:
			failed++
		}
	}
	msg := fmt.Sprintf("%d/%d playing, %d failed", playing, len(views), failed)
	if failed > 0 {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
