// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/history"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/sink"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSink struct {
	mu       sync.Mutex
	sources  []string
	events   playback.NativeEvents
	detaches int
}

func (f *fakeSink) CanPlayType(contentType string) bool {
	return contentType == playback.HLSContentType
}

func (f *fakeSink) SetSource(src string, events playback.NativeEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	f.events = events
	return nil
}

func (f *fakeSink) AppendSegment(playback.Segment) error { return nil }
func (f *fakeSink) Play() error                          { return nil }

func (f *fakeSink) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
}

func (f *fakeSink) Stats() sink.Stats {
	return sink.Stats{Native: true, Segments: 3}
}

func (f *fakeSink) loaded() {
	f.mu.Lock()
	ev := f.events
	f.mu.Unlock()
	ev.LoadedMetadata()
}

func (f *fakeSink) sourceList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

type harness struct {
	sup   *Supervisor
	clock *clockwork.FakeClock
	mu    sync.Mutex
	sinks map[string]*fakeSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: clockwork.NewFakeClock(), sinks: make(map[string]*fakeSink)}
	h.sup = New(playback.NewSelector(nil, h.clock), func(id string) Sink {
		h.mu.Lock()
		defer h.mu.Unlock()
		s := &fakeSink{}
		h.sinks[id] = s
		return s
	}, WithClock(h.clock))
	t.Cleanup(h.sup.Close)
	return h
}

func (h *harness) sink(id string) *fakeSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[id]
}

func streams(ids ...string) []config.Stream {
	out := make([]config.Stream, 0, len(ids))
	for _, id := range ids {
		out = append(out, config.Stream{ID: id, Name: "Camera " + id, URL: "http://media/cam" + id + "/index.m3u8"})
	}
	return out
}

func TestSupervisor_ApplyStartsSessions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Apply(streams("2", "1")))

	views := h.sup.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "1", views[0].ID)
	assert.Equal(t, "2", views[1].ID)
	for _, v := range views {
		assert.Equal(t, playback.ViewLoading, v.State)
		assert.Equal(t, playback.EngineNative, v.Engine)
	}

	h.sink("1").loaded()
	require.Eventually(t, func() bool {
		v, ok := h.sup.View("1")
		return ok && v.State == playback.ViewPlaying
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisor_ApplyReconciles(t *testing.T) {
	h := newHarness(t)
	var removed []string
	h.sup.OnRemoved(func(id string) { removed = append(removed, id) })

	require.NoError(t, h.sup.Apply(streams("1", "2")))
	s2 := h.sink("2")

	next := streams("1")
	next[0].URL = "http://media/moved/index.m3u8"
	require.NoError(t, h.sup.Apply(next))

	assert.Equal(t, []string{"http://media/cam1/index.m3u8", "http://media/moved/index.m3u8"}, h.sink("1").sourceList())
	v, ok := h.sup.View("1")
	require.True(t, ok)
	assert.Equal(t, "http://media/moved/index.m3u8", v.Source)

	_, ok = h.sup.View("2")
	assert.False(t, ok)
	assert.Equal(t, []string{"2"}, removed)
	assert.Positive(t, s2.detaches, "removed session releases its sink")

	require.NoError(t, h.sup.Apply(next))
	assert.Len(t, h.sink("1").sourceList(), 2, "unchanged stream is left alone")
}

func TestSupervisor_UnknownStream(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.sup.Retry("nope"), ErrUnknownStream)
	assert.ErrorIs(t, h.sup.Stop("nope"), ErrUnknownStream)
	_, ok := h.sup.Detail("nope")
	assert.False(t, ok)
}

func TestSupervisor_StopAndRetry(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Apply(streams("1")))

	require.NoError(t, h.sup.Stop("1"))
	v, _ := h.sup.View("1")
	assert.Equal(t, playback.ViewIdle, v.State)

	require.NoError(t, h.sup.Retry("1"))
	v, _ = h.sup.View("1")
	assert.Equal(t, playback.ViewLoading, v.State)
	assert.Len(t, h.sink("1").sourceList(), 2)
}

func TestSupervisor_Detail(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Apply(streams("1")))

	d, ok := h.sup.Detail("1")
	require.True(t, ok)
	assert.Equal(t, "Camera 1", d.Name)
	assert.False(t, d.CanRetry)
	assert.True(t, d.Sink.Native)
	assert.Equal(t, int64(3), d.Sink.Segments)
}

func TestSupervisor_ClosedRejectsApply(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Apply(streams("1")))
	h.sup.Close()

	assert.ErrorIs(t, h.sup.Apply(streams("1")), playback.ErrSessionClosed)
	assert.ErrorIs(t, h.sup.Retry("1"), playback.ErrSessionClosed)
}

type viewLog struct {
	mu    sync.Mutex
	views []playback.View
}

func (l *viewLog) add(v playback.View) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog) states(id string) []playback.ViewState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []playback.ViewState
	for _, v := range l.views {
		if v.ID == id {
			out = append(out, v.State)
		}
	}
	return out
}

func TestSupervisor_RunFansOutViews(t *testing.T) {
	h := newHarness(t)
	views := &viewLog{}
	h.sup.OnView(views.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sup.Run(ctx) }()

	require.NoError(t, h.sup.Apply(streams("1")))
	h.sink("1").loaded()

	require.Eventually(t, func() bool {
		states := views.states("1")
		return len(states) >= 2 && states[len(states)-1] == playback.ViewPlaying
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	states := views.states("1")
	assert.Equal(t, playback.ViewIdle, states[len(states)-1], "shutdown closes sessions and flushes their last view")
}

func TestSupervisor_QueueFullDrops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sup := New(playback.NewSelector(nil, clock), func(string) Sink { return &fakeSink{} }, WithClock(clock), WithQueueSize(1))
	defer sup.Close()

	before := testutil.ToFloat64(metrics.QueueDropped.WithLabelValues(viewTopic))
	require.NoError(t, sup.Apply(streams("1", "2", "3")))
	assert.Len(t, sup.queue, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.QueueDropped.WithLabelValues(viewTopic)), before+2)
}

type eventLog struct{ events []history.Event }

func (l *eventLog) Enqueue(ev history.Event) { l.events = append(l.events, ev) }

func TestHistoryRecorder_RecordsTransitionsOnly(t *testing.T) {
	log := &eventLog{}
	rec := NewHistoryRecorder(log)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.Record(playback.View{ID: "1", State: playback.ViewLoading, Generation: 1, Since: at})
	rec.Record(playback.View{ID: "1", State: playback.ViewLoading, Generation: 1, Since: at})
	rec.Record(playback.View{ID: "1", State: playback.ViewRetrying, Attempt: 1, Message: "timeout", Generation: 1, Since: at})
	rec.Record(playback.View{ID: "1", State: playback.ViewRetrying, Attempt: 2, Generation: 2, Since: at})
	rec.Record(playback.View{ID: "2", State: playback.ViewLoading, Generation: 1, Since: at})

	require.Len(t, log.events, 4)
	assert.Equal(t, history.Event{CameraID: "1", Generation: 1, State: "retrying", Attempt: 1, Message: "timeout", At: at}, log.events[1])
	assert.Equal(t, 2, log.events[2].Attempt)
	assert.Equal(t, "2", log.events[3].CameraID)
}

func TestHistoryRecorder_ForgetsRemovedCameras(t *testing.T) {
	log := &eventLog{}
	rec := NewHistoryRecorder(log)

	v := playback.View{ID: "7", State: playback.ViewPlaying, Generation: 1}
	rec.Record(v)
	assert.Equal(t, 1, rec.tracked())

	rec.Forget("7")
	assert.Equal(t, 0, rec.tracked())

	// A camera that comes back records its first view again.
	rec.Record(v)
	assert.Len(t, log.events, 2)
}
