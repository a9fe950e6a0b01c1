// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor keeps one playback session per configured camera and
// fans their views out to interested consumers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/sink"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrUnknownStream is returned for camera ids the supervisor does not manage.
var ErrUnknownStream = errors.New("unknown stream")

const viewTopic = "views"

// Sink is a media sink that reports playback statistics.
type Sink interface {
	playback.MediaSink
	Stats() sink.Stats
}

// SinkFactory creates the sink for a camera.
type SinkFactory func(id string) Sink

// Detail is the extended view of a single stream.
type Detail struct {
	playback.View
	Name     string     `json:"name,omitempty"`
	CanRetry bool       `json:"can_retry"`
	Sink     sink.Stats `json:"sink"`
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock sets the clock handed to every session.
func WithClock(c clockwork.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithQueueSize sets the fan-out buffer size.
func WithQueueSize(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.queue = make(chan playback.View, n)
		}
	}
}

type entry struct {
	stream      config.Stream
	session     *playback.Session
	sink        Sink
	unsubscribe func()
}

// Supervisor is the registry of camera sessions.
type Supervisor struct {
	selector *playback.Selector
	newSink  SinkFactory
	clock    clockwork.Clock
	logger   zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	hookMu    sync.RWMutex
	onView    []func(playback.View)
	onRemoved []func(id string)

	queue chan playback.View
}

// New creates an empty supervisor.
func New(selector *playback.Selector, newSink SinkFactory, opts ...Option) *Supervisor {
	s := &Supervisor{
		selector: selector,
		newSink:  newSink,
		clock:    clockwork.NewRealClock(),
		logger:   log.WithComponent("supervisor"),
		entries:  make(map[string]*entry),
		queue:    make(chan playback.View, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnView registers fn for every view change of every session. fn runs on the
// fan-out goroutine started by Run.
func (s *Supervisor) OnView(fn func(playback.View)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onView = append(s.onView, fn)
}

// OnRemoved registers fn for streams that left the configuration.
func (s *Supervisor) OnRemoved(fn func(id string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onRemoved = append(s.onRemoved, fn)
}

type change struct {
	entry  *entry
	source string
}

// Apply reconciles the running sessions with streams. New streams are
// started, streams with a changed address are restarted on it and streams
// that disappeared are closed.
func (s *Supervisor) Apply(streams []config.Stream) error {
	var starts []change
	var removed []*entry

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return playback.ErrSessionClosed
	}
	seen := make(map[string]struct{}, len(streams))
	for _, st := range streams {
		seen[st.ID] = struct{}{}
		e, ok := s.entries[st.ID]
		if !ok {
			e = s.create(st)
			s.entries[st.ID] = e
			starts = append(starts, change{entry: e, source: st.URL})
			continue
		}
		prev := e.stream
		e.stream = st
		if prev.URL != st.URL {
			starts = append(starts, change{entry: e, source: st.URL})
		}
	}
	for id, e := range s.entries {
		if _, ok := seen[id]; !ok {
			delete(s.entries, id)
			removed = append(removed, e)
		}
	}
	s.mu.Unlock()

	for _, e := range removed {
		s.close(e)
		s.logger.Info().Str(log.FieldCameraID, e.stream.ID).Str(log.FieldEvent, "supervisor.removed").Msg("stream removed")
		for _, fn := range s.removedHooks() {
			fn(e.stream.ID)
		}
	}

	var errs []error
	for _, c := range starts {
		if err := c.entry.session.Start(c.source); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", c.entry.stream.ID, err))
			continue
		}
		s.logger.Info().
			Str(log.FieldCameraID, c.entry.stream.ID).
			Str(log.FieldSource, c.source).
			Str(log.FieldEvent, "supervisor.started").
			Msg("stream started")
	}
	return errors.Join(errs...)
}

func (s *Supervisor) create(st config.Stream) *entry {
	snk := s.newSink(st.ID)
	sess := playback.NewSession(st.ID, snk, s.selector, playback.WithClock(s.clock))
	unsubscribe := sess.Subscribe(s.enqueue)
	return &entry{stream: st, session: sess, sink: snk, unsubscribe: unsubscribe}
}

func (s *Supervisor) close(e *entry) {
	e.session.Close()
	e.unsubscribe()
}

// enqueue runs inside a session step and never blocks.
func (s *Supervisor) enqueue(v playback.View) {
	select {
	case s.queue <- v:
	default:
		metrics.IncQueueDrop(viewTopic)
		s.logger.Warn().Str(log.FieldCameraID, v.ID).Msg("view queue full, dropping update")
	}
}

func (s *Supervisor) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, id)
	}
	return e, nil
}

// Retry requests a manual retry of stream id.
func (s *Supervisor) Retry(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.session.ManualRetry()
}

// Stop tears stream id down. It stays registered and can be retried.
func (s *Supervisor) Stop(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.session.Teardown()
	return nil
}

// View returns the current view of stream id.
func (s *Supervisor) View(id string) (playback.View, bool) {
	e, err := s.lookup(id)
	if err != nil {
		return playback.View{}, false
	}
	return e.session.View(), true
}

// Detail returns the extended view of stream id.
func (s *Supervisor) Detail(id string) (Detail, bool) {
	e, err := s.lookup(id)
	if err != nil {
		return Detail{}, false
	}
	v := e.session.View()
	return Detail{
		View:     v,
		Name:     e.stream.Name,
		CanRetry: v.CanRetry(),
		Sink:     e.sink.Stats(),
	}, true
}

// Views returns every view ordered by camera id.
func (s *Supervisor) Views() []playback.View {
	s.mu.RLock()
	out := make([]playback.View, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.session.View())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run dispatches view changes to the registered hooks until ctx is done, then
// closes every session.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case v := <-s.queue:
			s.dispatch(v)
		case <-ctx.Done():
			s.Close()
			for {
				select {
				case v := <-s.queue:
					s.dispatch(v)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Supervisor) dispatch(v playback.View) {
	s.hookMu.RLock()
	hooks := slices.Clone(s.onView)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(v)
	}
}

func (s *Supervisor) removedHooks() []func(string) {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	return slices.Clone(s.onRemoved)
}

// Close closes every session. Apply fails afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.close(e)
	}
	s.logger.Info().Int("sessions", len(entries)).Msg("supervisor closed")
}
