// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hlsengine

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// liveOrigin serves a master playlist, a sliding live media playlist and
// segments. Each level request advances the window by one segment.
type liveOrigin struct {
	mu          sync.Mutex
	seq         int
	vod         bool
	failLevel   int
	failMaster  bool
	brokenLevel int
	requests    map[string]int
}

func (o *liveOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.requests == nil {
		o.requests = make(map[string]int)
	}
	o.requests[r.URL.Path]++

	switch {
	case r.URL.Path == "/cam1/index.m3u8":
		if o.failMaster {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=500000\nlow.m3u8\n")
	case r.URL.Path == "/cam1/low.m3u8":
		if o.requests[r.URL.Path] > 1 && o.failLevel > 0 {
			o.failLevel--
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		if o.requests[r.URL.Path] > 1 && o.brokenLevel > 0 {
			o.brokenLevel--
			fmt.Fprint(w, "garbage")
			return
		}
		var b strings.Builder
		b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:1\n")
		fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", o.seq)
		for i := o.seq; i < o.seq+3; i++ {
			fmt.Fprintf(&b, "#EXTINF:1.0,\nseg%d.ts\n", i)
		}
		if o.vod {
			b.WriteString("#EXT-X-ENDLIST\n")
		}
		o.seq++
		fmt.Fprint(w, b.String())
	case strings.HasPrefix(r.URL.Path, "/cam1/seg"):
		fmt.Fprintf(w, "data:%s", r.URL.Path)
	default:
		http.NotFound(w, r)
	}
}

func (o *liveOrigin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[path]
}

func (o *liveOrigin) set(fn func(o *liveOrigin)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o)
}

type recordingSink struct {
	mu       sync.Mutex
	segments []playback.Segment
	failNext int
}

func (s *recordingSink) CanPlayType(string) bool { return false }
func (s *recordingSink) SetSource(string, playback.NativeEvents) error {
	return errors.New("not supported")
}
func (s *recordingSink) Play() error { return nil }
func (s *recordingSink) Detach()     {}

func (s *recordingSink) AppendSegment(seg playback.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("decoder rejected segment")
	}
	s.segments = append(s.segments, seg)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

type eventLog struct {
	parsed chan struct{}
	errs   chan playback.EngineError
}

func newEventLog() *eventLog {
	return &eventLog{parsed: make(chan struct{}, 4), errs: make(chan playback.EngineError, 16)}
}

func (l *eventLog) events() playback.EngineEvents {
	return playback.EngineEvents{
		ManifestParsed: func() { l.parsed <- struct{}{} },
		Error:          func(ev playback.EngineError) { l.errs <- ev },
	}
}

func (l *eventLog) nextError(t *testing.T) playback.EngineError {
	t.Helper()
	select {
	case ev := <-l.errs:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for engine error")
		return playback.EngineError{}
	}
}

func testConfig() playback.EngineConfig {
	cfg := playback.LiveEngineConfig()
	cfg.ManifestLoadMaxRetry = 2
	cfg.ManifestLoadRetryWait = 5 * time.Millisecond
	cfg.LevelLoadMaxRetry = 2
	cfg.LevelLoadRetryWait = 5 * time.Millisecond
	cfg.FragLoadMaxRetry = 2
	cfg.FragLoadRetryWait = 5 * time.Millisecond
	return cfg
}

func startEngine(t *testing.T, origin *liveOrigin, sink *recordingSink) (*Engine, *eventLog) {
	t.Helper()
	srv := httptest.NewServer(origin)
	t.Cleanup(srv.Close)

	p := NewProvider(true, WithHTTPClient(srv.Client()), WithPollInterval(10*time.Millisecond))
	e := p.NewEngine(testConfig())
	ev := newEventLog()
	e.Listen(ev.events())
	e.LoadSource(srv.URL + "/cam1/index.m3u8")
	e.AttachSink(sink)
	t.Cleanup(func() {
		e.Destroy()
		<-e.Done()
	})
	return e, ev
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestProvider_Supported(t *testing.T) {
	assert.True(t, NewProvider(true).Supported())
	assert.False(t, NewProvider(false).Supported())
	var nilProvider *Provider
	assert.False(t, nilProvider.Supported())
}

func TestEngine_PlaysLiveStream(t *testing.T) {
	origin := &liveOrigin{seq: 100}
	sink := &recordingSink{}
	_, ev := startEngine(t, origin, sink)

	select {
	case <-ev.parsed:
	case <-time.After(3 * time.Second):
		t.Fatal("manifest never parsed")
	}

	require.Eventually(t, func() bool { return sink.count() >= 4 }, 3*time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	first := sink.segments[0]
	seqs := make([]uint64, 0, len(sink.segments))
	for _, s := range sink.segments {
		seqs = append(seqs, s.Sequence)
	}
	sink.mu.Unlock()

	assert.Equal(t, uint64(100), first.Sequence, "starts near the live edge")
	assert.Equal(t, "data:/cam1/seg100.ts", string(first.Data))
	for i := 1; i < len(seqs); i++ {
		assert.Equal(t, seqs[i-1]+1, seqs[i], "segments appended in order without gaps")
	}
	assert.Empty(t, ev.errs)
}

func TestEngine_ManifestFailureIsFatalNetwork(t *testing.T) {
	origin := &liveOrigin{failMaster: true}
	e, ev := startEngine(t, origin, &recordingSink{})

	got := ev.nextError(t)
	assert.Equal(t, playback.KindNetwork, got.Kind)
	assert.True(t, got.Fatal)
	assert.Equal(t, DetailManifestLoad, got.Details)
	waitDone(t, e)
	assert.Equal(t, 3, origin.count("/cam1/index.m3u8"), "initial try plus configured retries")
	assert.Empty(t, ev.parsed)
}

func TestEngine_RejectsVOD(t *testing.T) {
	origin := &liveOrigin{vod: true}
	e, ev := startEngine(t, origin, &recordingSink{})

	got := ev.nextError(t)
	assert.Equal(t, playback.KindOther, got.Kind)
	assert.True(t, got.Fatal)
	assert.Equal(t, DetailLevelType, got.Details)
	waitDone(t, e)
}

func TestEngine_LevelRefreshFailurePausesUntilStartLoad(t *testing.T) {
	origin := &liveOrigin{failLevel: 1}
	sink := &recordingSink{}
	e, ev := startEngine(t, origin, sink)

	got := ev.nextError(t)
	assert.Equal(t, playback.KindNetwork, got.Kind)
	assert.False(t, got.Fatal)
	assert.Equal(t, DetailLevelLoad, got.Details)

	paused := origin.count("/cam1/low.m3u8")
	assert.Never(t, func() bool { return origin.count("/cam1/low.m3u8") > paused }, 60*time.Millisecond, 10*time.Millisecond)

	e.StartLoad()
	require.Eventually(t, func() bool { return origin.count("/cam1/low.m3u8") > paused+1 }, 3*time.Second, 5*time.Millisecond)
}

func TestEngine_AppendFailureWaitsForRecovery(t *testing.T) {
	origin := &liveOrigin{}
	sink := &recordingSink{failNext: 1}
	e, ev := startEngine(t, origin, sink)

	got := ev.nextError(t)
	assert.Equal(t, playback.KindMedia, got.Kind)
	assert.False(t, got.Fatal)
	assert.Equal(t, DetailBufferAppend, got.Details)
	assert.Never(t, func() bool { return sink.count() > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	e.RecoverMediaError()
	require.Eventually(t, func() bool { return sink.count() > 0 }, 3*time.Second, 5*time.Millisecond)
}

func TestEngine_BrokenLevelIsMediaError(t *testing.T) {
	origin := &liveOrigin{brokenLevel: 1}
	e, ev := startEngine(t, origin, &recordingSink{})

	got := ev.nextError(t)
	assert.Equal(t, playback.KindMedia, got.Kind)
	assert.Equal(t, DetailLevelParsing, got.Details)
	e.RecoverMediaError()
}

func TestEngine_RepeatedLevelFailuresBecomeFatal(t *testing.T) {
	origin := &liveOrigin{failLevel: 100}
	e, ev := startEngine(t, origin, &recordingSink{})

	for i := 0; i < 2; i++ {
		got := ev.nextError(t)
		require.False(t, got.Fatal)
		e.StartLoad()
	}
	got := ev.nextError(t)
	assert.True(t, got.Fatal)
	assert.Equal(t, DetailLevelLoad, got.Details)
	waitDone(t, e)
}

func TestEngine_DestroyStopsLoaderAndEvents(t *testing.T) {
	origin := &liveOrigin{}
	sink := &recordingSink{}
	e, ev := startEngine(t, origin, sink)
	<-ev.parsed

	e.Destroy()
	e.Destroy()
	waitDone(t, e)

	requests := origin.count("/cam1/low.m3u8")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, requests, origin.count("/cam1/low.m3u8"))
}

func TestEngine_DestroyBeforeStart(t *testing.T) {
	e := NewProvider(true).NewEngine(testConfig())
	e.LoadSource("http://127.0.0.1:1/never.m3u8")
	e.Destroy()
	waitDone(t, e)

	e.AttachSink(&recordingSink{})
	waitDone(t, e)
}
