// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback keeps a live HLS stream playing on a sink across network
// failures, stalled loads and engine errors.
//
// A Session owns one sink, at most one engine handle, one load watchdog and
// one retry timer. Every state change runs as a step on a serial executor, and
// every asynchronous callback carries the generation of the attempt that armed
// it; callbacks from superseded attempts are dropped.
package playback

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/telemetry"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoSource is returned by ManualRetry when no source address was ever set.
var ErrNoSource = errors.New("playback session has no source")

const tracerName = "github.com/ManuGH/livewatch/internal/playback"

// Option configures a Session.
type Option func(*Session)

// WithClock injects the clock used for the watchdog and retry timers.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger overrides the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracer overrides the tracer used for per-attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// Session is one playback lifecycle for one sink.
type Session struct {
	id       string
	sink     MediaSink
	selector *Selector
	clock    clockwork.Clock
	logger   zerolog.Logger
	tracer   trace.Tracer

	exec serial

	// Owned by steps running on exec.
	source     string
	status     Status
	retries    int
	mounted    bool
	generation uint64
	settled    bool
	handle     Handle
	watchdog   clockwork.Timer
	retry      clockwork.Timer
	message    string
	attemptAt  time.Time
	since      time.Time
	span       trace.Span

	viewMu    sync.RWMutex
	view      View
	listeners map[int]func(View)
	nextSub   int
}

// NewSession creates an idle, mounted session bound to sink.
func NewSession(id string, sink MediaSink, selector *Selector, opts ...Option) *Session {
	s := &Session{
		id:        id,
		sink:      sink,
		selector:  selector,
		clock:     clockwork.NewRealClock(),
		logger:    log.WithComponent("playback"),
		tracer:    telemetry.Tracer(tracerName),
		status:    StatusIdle,
		mounted:   true,
		listeners: make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str(log.FieldCameraID, id).Logger()
	s.exec.onPanic = func(v any) {
		s.logger.Error().
			Str(log.FieldEvent, "playback.step_panic").
			Interface("panic", v).
			Str("stack", string(debug.Stack())).
			Msg("session step panicked")
	}
	s.since = s.clock.Now()
	s.view = s.project()
	metrics.MoveSessionState("", string(ViewIdle))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// View returns the current projection.
func (s *Session) View() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// Subscribe registers fn for every changed View. fn runs inside the session's
// step and must neither block nor call back into the session.
func (s *Session) Subscribe(fn func(View)) (cancel func()) {
	s.viewMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.viewMu.Unlock()
	return func() {
		s.viewMu.Lock()
		delete(s.listeners, id)
		s.viewMu.Unlock()
	}
}

// Start tears down whatever is running and begins a fresh attempt for src.
// A different src, or a session that is idle or failed, starts a new retry
// budget. An empty src leaves the session idle.
func (s *Session) Start(src string) error {
	var err error
	s.do(func() {
		if !s.mounted {
			err = ErrSessionClosed
			return
		}
		if src != s.source || s.status == StatusIdle || s.status == StatusFailed {
			s.retries = 0
		}
		if src == "" {
			s.reset()
			s.source = ""
			return
		}
		s.begin(src)
	})
	return err
}

// ManualRetry resets the retry budget and reconnects immediately, whatever the
// current state.
func (s *Session) ManualRetry() error {
	var err error
	s.do(func() {
		switch {
		case !s.mounted:
			err = ErrSessionClosed
			return
		case s.source == "":
			err = ErrNoSource
			return
		}
		s.retries = 0
		s.message = ""
		s.setStatus(StatusConnecting)
		metrics.IncPlaybackManualRetry()
		s.logger.Info().Str(log.FieldEvent, "playback.manual_retry").Msg("manual retry requested")
		s.begin(s.source)
	})
	return err
}

// Teardown cancels timers, destroys the engine and detaches the sink. Nothing
// armed before Teardown has any effect afterwards. Safe to call repeatedly.
func (s *Session) Teardown() {
	s.do(s.reset)
}

// Close unmounts the session. It is terminal: later calls are rejected and
// pending callbacks become no-ops.
func (s *Session) Close() {
	s.do(func() {
		if !s.mounted {
			return
		}
		s.reset()
		s.mounted = false
		metrics.MoveSessionState(string(viewState(s.status)), "")
		s.logger.Debug().Str(log.FieldEvent, "playback.closed").Msg("session closed")
	})
}

// do runs fn as a synchronous step and publishes the resulting view.
func (s *Session) do(fn func()) {
	s.exec.run(func() {
		fn()
		s.publish()
	})
}

// async posts fn as a step without waiting.
func (s *Session) async(fn func()) {
	s.exec.post(func() {
		fn()
		s.publish()
	})
}

func (s *Session) current(gen uint64) bool {
	return s.mounted && gen == s.generation
}

func (s *Session) reset() {
	s.release()
	s.generation++
	s.settled = false
	s.message = ""
	s.setStatus(StatusIdle)
}

func (s *Session) begin(src string) {
	s.release()
	s.generation++
	gen := s.generation
	s.source = src
	s.settled = false
	s.message = ""
	s.attemptAt = s.clock.Now()
	s.setStatus(StatusConnecting)

	_, s.span = s.tracer.Start(context.Background(), "playback.attempt",
		trace.WithAttributes(telemetry.PlaybackAttributes(s.id, src, gen, s.retries)...))

	h, err := s.selector.Attach(src, s.sink, Signals{
		Ready: func() { s.async(func() { s.onReady(gen) }) },
		Fail:  func(err error) { s.async(func() { s.onFailure(gen, err) }) },
	})
	if err != nil {
		s.failTerminal(err)
		return
	}
	s.handle = h
	s.span.SetAttributes(telemetry.EngineAttribute(string(h.Kind())))
	metrics.IncPlaybackAttempt(string(h.Kind()))
	s.watchdog = s.clock.AfterFunc(LoadTimeout, func() { s.async(func() { s.onWatchdog(gen) }) })

	s.logger.Info().
		Str(log.FieldEvent, "playback.attempt").
		Uint64(log.FieldGeneration, gen).
		Int(log.FieldAttempt, s.retries).
		Str(log.FieldEngine, string(h.Kind())).
		Str(log.FieldSource, src).
		Msg("connecting to stream")
}

func (s *Session) onReady(gen uint64) {
	if !s.current(gen) || s.settled {
		return
	}
	s.stopWatchdog()
	s.retries = 0
	s.message = ""
	if s.status != StatusPlaying {
		engine := EngineNone
		if s.handle != nil {
			engine = s.handle.Kind()
		}
		metrics.ObservePlaybackStartup(string(engine), s.clock.Since(s.attemptAt))
		s.endSpan(nil)
	}
	s.setStatus(StatusPlaying)
	if err := s.sink.Play(); err != nil {
		s.logger.Debug().Err(err).Msg("autoplay rejected")
	}
}

func (s *Session) onWatchdog(gen uint64) {
	if !s.current(gen) || s.settled || s.watchdog == nil {
		return
	}
	s.watchdog = nil
	s.escalate(ErrLoadTimeout)
}

func (s *Session) onFailure(gen uint64, err error) {
	if !s.current(gen) || s.settled {
		return
	}
	s.escalate(err)
}

func (s *Session) onRetry(gen uint64) {
	if !s.current(gen) || s.retry == nil {
		return
	}
	s.retry = nil
	s.begin(s.source)
}

// escalate applies the bounded retry policy. It runs at most once per attempt.
func (s *Session) escalate(err error) {
	s.settled = true
	class := Classify(err)
	s.endSpan(err)
	s.release()
	metrics.IncPlaybackError(string(class))

	s.retries++
	if s.retries < MaxAutoRetries {
		gen := s.generation
		s.setStatus(StatusRetrying)
		s.retry = s.clock.AfterFunc(RetryDelay, func() { s.async(func() { s.onRetry(gen) }) })
		metrics.IncPlaybackRetry()
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "playback.retry_scheduled").
			Str(log.FieldErrorClass, string(class)).
			Int(log.FieldAttempt, s.retries).
			Dur("delay", RetryDelay).
			Msg("stream attempt failed, retrying")
		return
	}

	s.message = fmt.Sprintf("stream unavailable after %d attempts (%s)", MaxAutoRetries, class)
	s.setStatus(StatusFailed)
	metrics.IncPlaybackFailure(string(class))
	s.logger.Error().
		Err(err).
		Str(log.FieldEvent, "playback.failed").
		Str(log.FieldErrorClass, string(class)).
		Int(log.FieldAttempt, s.retries).
		Msg("giving up on stream")
}

// failTerminal handles errors that retrying cannot change.
func (s *Session) failTerminal(err error) {
	s.settled = true
	class := Classify(err)
	s.endSpan(err)
	s.release()
	s.message = "this platform cannot play HLS streams"
	s.setStatus(StatusFailed)
	metrics.IncPlaybackError(string(class))
	metrics.IncPlaybackFailure(string(class))
	s.logger.Error().
		Err(err).
		Str(log.FieldEvent, "playback.unsupported").
		Msg("no playback path available")
}

// release is the single cancellation point for timers, engine and sink.
func (s *Session) release() {
	s.stopWatchdog()
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.handle != nil {
		s.handle.Destroy()
		s.handle = nil
	}
	s.sink.Detach()
	if s.span != nil {
		// Superseded or torn down before an outcome.
		s.span.End()
		s.span = nil
	}
}

func (s *Session) stopWatchdog() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func (s *Session) endSpan(err error) {
	if s.span == nil {
		return
	}
	if err != nil {
		class := string(Classify(err))
		s.span.RecordError(err)
		s.span.SetAttributes(telemetry.ErrorClassAttribute(class))
		s.span.SetStatus(codes.Error, class)
		telemetry.RecordAttemptOutcome(context.Background(), class)
	} else {
		s.span.SetStatus(codes.Ok, "")
		telemetry.RecordAttemptOutcome(context.Background(), "playing")
	}
	s.span.End()
	s.span = nil
}

func (s *Session) setStatus(next Status) {
	if next == s.status {
		return
	}
	prev := s.status
	s.status = next
	s.since = s.clock.Now()
	if s.mounted {
		metrics.MoveSessionState(string(viewState(prev)), string(viewState(next)))
	}
	s.logger.Debug().
		Str(log.FieldEvent, "playback.transition").
		Str(log.FieldOldState, string(prev)).
		Str(log.FieldNewState, string(next)).
		Uint64(log.FieldGeneration, s.generation).
		Msg("status changed")
}

func (s *Session) project() View {
	engine := EngineNone
	if s.handle != nil {
		engine = s.handle.Kind()
	}
	return View{
		ID:          s.id,
		State:       viewState(s.status),
		Attempt:     s.retries,
		MaxAttempts: MaxAutoRetries,
		Message:     s.message,
		Source:      s.source,
		Engine:      engine,
		Generation:  s.generation,
		Since:       s.since,
	}
}

func (s *Session) publish() {
	v := s.project()
	s.viewMu.Lock()
	if sameProjection(v, s.view) {
		s.viewMu.Unlock()
		return
	}
	s.view = v
	listeners := make([]func(View), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.viewMu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
