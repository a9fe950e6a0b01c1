// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	native   bool
	sources  []string
	events   NativeEvents
	setErr   error
	playErr  error
	plays    int
	detaches int
	segments []Segment
}

func (f *fakeSink) CanPlayType(contentType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.native && contentType == HLSContentType
}

func (f *fakeSink) SetSource(src string, events NativeEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	f.events = events
	return f.setErr
}

func (f *fakeSink) AppendSegment(seg Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, seg)
	return nil
}

func (f *fakeSink) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return f.playErr
}

func (f *fakeSink) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
}

func (f *fakeSink) loaded() {
	f.mu.Lock()
	ev := f.events
	f.mu.Unlock()
	ev.LoadedMetadata()
}

func (f *fakeSink) fail(err error) {
	f.mu.Lock()
	ev := f.events
	f.mu.Unlock()
	ev.Error(err)
}

func (f *fakeSink) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

type fakeEngine struct {
	mu         sync.Mutex
	cfg        EngineConfig
	events     EngineEvents
	src        string
	sink       MediaSink
	startLoads int
	recovers   int
	destroyed  bool
}

func (e *fakeEngine) Listen(events EngineEvents) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = events
}

func (e *fakeEngine) LoadSource(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
}

func (e *fakeEngine) AttachSink(sink MediaSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoads++
}

func (e *fakeEngine) RecoverMediaError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovers++
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

func (e *fakeEngine) parsed() {
	e.mu.Lock()
	ev := e.events
	e.mu.Unlock()
	ev.ManifestParsed()
}

func (e *fakeEngine) fail(ee EngineError) {
	e.mu.Lock()
	ev := e.events
	e.mu.Unlock()
	ev.Error(ee)
}

func (e *fakeEngine) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *fakeEngine) counts() (startLoads, recovers int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoads, e.recovers
}

type fakeProvider struct {
	mu        sync.Mutex
	supported bool
	engines   []*fakeEngine
}

func (p *fakeProvider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *fakeProvider) New(cfg EngineConfig) StreamEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := &fakeEngine{cfg: cfg}
	p.engines = append(p.engines, e)
	return e
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.engines)
}

func (p *fakeProvider) last(t *testing.T) *fakeEngine {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.engines, "no engine constructed")
	return p.engines[len(p.engines)-1]
}

var errBoom = errors.New("boom")

func newTestSession(t *testing.T, sink *fakeSink, provider EngineProvider) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sel := NewSelector(provider, clock)
	s := NewSession("cam1", sink, sel, WithClock(clock), WithLogger(zerolog.Nop()))
	t.Cleanup(s.Close)
	return s, clock
}

// waitView blocks until the session projection satisfies pred.
func waitView(t *testing.T, s *Session, pred func(View) bool, msg string) View {
	t.Helper()
	require.Eventually(t, func() bool { return pred(s.View()) }, 2*time.Second, 2*time.Millisecond, msg)
	return s.View()
}

func waitState(t *testing.T, s *Session, state ViewState, attempt int) View {
	t.Helper()
	return waitView(t, s, func(v View) bool {
		return v.State == state && v.Attempt == attempt
	}, "waiting for "+string(state))
}

// pendingTimers reports which session-owned timers are armed.
func pendingTimers(s *Session) (watchdog, retry bool) {
	s.exec.run(func() {
		watchdog = s.watchdog != nil
		retry = s.retry != nil
	})
	return watchdog, retry
}
