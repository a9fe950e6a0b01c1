// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards calls to optional dependencies so a dead
// dependency costs one fast rejection instead of a timeout per call.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// State of a CircuitBreaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned instead of calling a dependency whose breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after threshold consecutive failures. Once
// resetTimeout has passed it lets calls probe the dependency again; the first
// probe result closes or reopens it.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	clock        clockwork.Clock
	recoverPanic bool

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock sets the clock used for the reset timeout.
func WithClock(c clockwork.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithPanicRecovery counts a panic in a guarded call as a failure before
// re-panicking.
func WithPanicRecovery(enabled bool) Option {
	return func(cb *CircuitBreaker) { cb.recoverPanic = enabled }
}

// NewCircuitBreaker creates a closed breaker. name labels its metrics.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        clockwork.NewRealClock(),
		state:        StateClosed,
	}
	if cb.threshold <= 0 {
		cb.threshold = 3
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetBreakerState(name, string(StateClosed))
	return cb
}

// Execute calls fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if cb.recoverPanic {
		defer func() {
			if r := recover(); r != nil {
				cb.Failure()
				panic(r)
			}
		}()
	}
	if err := fn(); err != nil {
		cb.Failure()
		return err
	}
	cb.Success()
	return nil
}

// Allow reports whether a call may proceed. Callers that use Allow directly
// must report the outcome with Success or Failure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.clock.Since(cb.openedAt) <= cb.resetTimeout {
			metrics.IncBreakerRejected(cb.name)
			return false
		}
		cb.setState(StateHalfOpen)
	}
	return true
}

// Success records a successful call and closes the breaker.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setState(StateClosed)
}

// Failure records a failed call.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip("probe_failed")
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		cb.trip("threshold")
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.openedAt = cb.clock.Now()
	cb.setState(StateOpen)
	metrics.IncBreakerTrip(cb.name, reason)
}

// setState requires cb.mu.
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.SetBreakerState(cb.name, string(s))
}
