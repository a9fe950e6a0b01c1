// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hlsengine is an adaptive-streaming engine for live HLS. It loads a
// manifest over HTTP, follows the live media playlist and appends new
// segments to a playback.MediaSink.
package hlsengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	maxPlaylistBytes = 1 << 20
	maxSegmentBytes  = 64 << 20
)

// Error details reported with engine error events.
const (
	DetailManifestLoad    = "manifestLoadError"
	DetailManifestParsing = "manifestParsingError"
	DetailLevelLoad       = "levelLoadError"
	DetailLevelParsing    = "levelParsingError"
	DetailLevelType       = "levelTypeUnsupported"
	DetailFragLoad        = "fragLoadError"
	DetailBufferAppend    = "bufferAppendError"
)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for manifests and segments.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithClock sets the clock used for retry waits.
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithPollInterval overrides the live playlist refresh interval, which
// otherwise follows the playlist's target duration.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// Provider constructs engines. It implements playback.EngineProvider.
type Provider struct {
	enabled      bool
	client       *http.Client
	clock        clockwork.Clock
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewProvider returns a provider. A disabled provider reports no support and
// the selector falls through to ErrUnsupportedPlatform.
func NewProvider(enabled bool, opts ...Option) *Provider {
	p := &Provider{
		enabled: enabled,
		client:  &http.Client{Timeout: 10 * time.Second},
		clock:   clockwork.NewRealClock(),
		logger:  log.WithComponent("hlsengine"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Supported reports whether engines may be constructed.
func (p *Provider) Supported() bool { return p != nil && p.enabled }

// New implements playback.EngineProvider.
func (p *Provider) New(cfg playback.EngineConfig) playback.StreamEngine {
	return p.NewEngine(cfg)
}

// NewEngine returns a concrete engine.
func (p *Provider) NewEngine(cfg playback.EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:          cfg,
		client:       p.client,
		clock:        p.clock,
		pollInterval: p.pollInterval,
		logger:       p.logger,
		ctx:          ctx,
		cancel:       cancel,
		resumeCh:     make(chan struct{}, 1),
		recoverCh:    make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Engine loads one live source into one sink. Loading begins once both a
// source and a sink are set. Destroy never blocks; Done reports when the
// loader goroutine has exited.
type Engine struct {
	cfg          playback.EngineConfig
	client       *http.Client
	clock        clockwork.Clock
	pollInterval time.Duration
	logger       zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	resumeCh  chan struct{}
	recoverCh chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	events    playback.EngineEvents
	src       string
	sink      playback.MediaSink
	started   bool
	destroyed bool
}

// Listen implements playback.StreamEngine.
func (e *Engine) Listen(events playback.EngineEvents) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = events
}

// LoadSource implements playback.StreamEngine.
func (e *Engine) LoadSource(src string) {
	e.mu.Lock()
	e.src = src
	e.mu.Unlock()
	e.maybeStart()
}

// AttachSink implements playback.StreamEngine.
func (e *Engine) AttachSink(sink playback.MediaSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
	e.maybeStart()
}

// StartLoad resumes loading after a non-fatal network error.
func (e *Engine) StartLoad() {
	signal(e.resumeCh)
}

// RecoverMediaError resets the decoding position to the live edge after a
// media error.
func (e *Engine) RecoverMediaError() {
	signal(e.recoverCh)
}

// Destroy stops the loader. No events are delivered afterwards.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.cancel()
	if !e.started {
		close(e.done)
	}
}

// Done is closed once the engine has stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) maybeStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.destroyed || e.src == "" || e.sink == nil {
		return
	}
	e.started = true
	go e.run(e.src, e.sink)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (e *Engine) emitParsed() {
	e.mu.Lock()
	fn, dead := e.events.ManifestParsed, e.destroyed
	e.mu.Unlock()
	if fn != nil && !dead {
		fn()
	}
}

func (e *Engine) emitError(kind playback.ErrorKind, fatal bool, details string, err error) {
	e.mu.Lock()
	fn, dead := e.events.Error, e.destroyed
	e.mu.Unlock()
	if dead {
		return
	}
	e.logger.Debug().Err(err).
		Str(log.FieldDetails, details).
		Bool("fatal", fatal).
		Msg("engine error")
	if fn != nil {
		fn(playback.EngineError{Kind: kind, Fatal: fatal, Details: details, Err: err})
	}
}

func (e *Engine) run(src string, sink playback.MediaSink) {
	defer close(e.done)
	ctx := e.ctx

	levelURL, level, ok := e.loadInitial(ctx, src)
	if !ok {
		return
	}
	e.emitParsed()

	limiter := rate.NewLimiter(rate.Every(e.refreshInterval(level)), 1)
	cursor := level.LiveEdge(e.cfg.LiveSyncDuration)
	refreshFailures := 0

	for {
		if level.Pending(cursor) > e.cfg.LiveMaxLatency || cursor < level.MediaSequence {
			cursor = level.LiveEdge(e.cfg.LiveSyncDuration)
			e.logger.Debug().Uint64("sequence", cursor).Msg("resynchronised to live edge")
		}

		var ok bool
		cursor, ok = e.appendNew(ctx, sink, level, cursor)
		if !ok {
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		next, err := e.fetchPlaylist(ctx, levelURL, "level")
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			refreshFailures++
			if refreshFailures > e.cfg.LevelLoadMaxRetry {
				e.emitError(playback.KindNetwork, true, DetailLevelLoad, err)
				return
			}
			var perr *parseError
			if errors.As(err, &perr) {
				e.emitError(playback.KindMedia, false, DetailLevelParsing, err)
				if !e.wait(ctx, e.recoverCh) {
					return
				}
				continue
			}
			e.emitError(playback.KindNetwork, false, DetailLevelLoad, err)
			if !e.wait(ctx, e.resumeCh) {
				return
			}
			continue
		}
		refreshFailures = 0
		level = next
	}
}

// appendNew fetches and appends every segment from cursor on. It returns the
// next cursor and false when the loader must stop.
func (e *Engine) appendNew(ctx context.Context, sink playback.MediaSink, level *Playlist, cursor uint64) (uint64, bool) {
	for _, ref := range level.Segments {
		if ref.Sequence < cursor {
			continue
		}
		data, err := e.fetchRetry(ctx, ref.URI, "segment", maxSegmentBytes, e.cfg.FragLoadMaxRetry, e.cfg.FragLoadRetryWait)
		if ctx.Err() != nil {
			return cursor, false
		}
		if err != nil {
			e.emitError(playback.KindNetwork, true, DetailFragLoad, err)
			return cursor, false
		}
		seg := playback.Segment{Sequence: ref.Sequence, URI: ref.URI, Duration: ref.Duration, Data: data}
		if err := sink.AppendSegment(seg); err != nil {
			e.emitError(playback.KindMedia, false, DetailBufferAppend, err)
			if !e.wait(ctx, e.recoverCh) {
				return cursor, false
			}
			return level.LiveEdge(e.cfg.LiveSyncDuration), true
		}
		cursor = ref.Sequence + 1
	}
	return cursor, true
}

// loadInitial resolves the source to a live media playlist.
func (e *Engine) loadInitial(ctx context.Context, src string) (string, *Playlist, bool) {
	body, err := e.fetchRetry(ctx, src, "manifest", maxPlaylistBytes, e.cfg.ManifestLoadMaxRetry, e.cfg.ManifestLoadRetryWait)
	if ctx.Err() != nil {
		return "", nil, false
	}
	if err != nil {
		e.emitError(playback.KindNetwork, true, DetailManifestLoad, err)
		return "", nil, false
	}
	pl, err := parseAt(body, src)
	if err != nil {
		e.emitError(playback.KindNetwork, true, DetailManifestParsing, err)
		return "", nil, false
	}

	levelURL := src
	if pl.Master {
		levelURL = pl.Variants[0].URI
		body, err = e.fetchRetry(ctx, levelURL, "level", maxPlaylistBytes, e.cfg.LevelLoadMaxRetry, e.cfg.LevelLoadRetryWait)
		if ctx.Err() != nil {
			return "", nil, false
		}
		if err != nil {
			e.emitError(playback.KindNetwork, true, DetailLevelLoad, err)
			return "", nil, false
		}
		pl, err = parseAt(body, levelURL)
		if err == nil && pl.Master {
			err = errors.New("variant resolves to another master playlist")
		}
		if err != nil {
			e.emitError(playback.KindNetwork, true, DetailLevelParsing, err)
			return "", nil, false
		}
	}
	if pl.Ended {
		e.emitError(playback.KindOther, true, DetailLevelType, errors.New("playlist is not live"))
		return "", nil, false
	}
	return levelURL, pl, true
}

func (e *Engine) refreshInterval(level *Playlist) time.Duration {
	if e.pollInterval > 0 {
		return e.pollInterval
	}
	return level.TargetDuration
}

// wait blocks until ch fires or the engine is destroyed.
func (e *Engine) wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return true
	}
}

type parseError struct{ err error }

func (p *parseError) Error() string { return "parse playlist: " + p.err.Error() }
func (p *parseError) Unwrap() error { return p.err }

func parseAt(body []byte, at string) (*Playlist, error) {
	base, err := url.Parse(at)
	if err != nil {
		return nil, &parseError{err: err}
	}
	pl, err := ParsePlaylist(body, base)
	if err != nil {
		return nil, &parseError{err: err}
	}
	return pl, nil
}

func (e *Engine) fetchPlaylist(ctx context.Context, u, resource string) (*Playlist, error) {
	body, err := e.fetch(ctx, u, resource, maxPlaylistBytes)
	if err != nil {
		return nil, err
	}
	pl, err := parseAt(body, u)
	if err != nil {
		return nil, err
	}
	if pl.Master {
		return nil, &parseError{err: errors.New("level playlist became a master playlist")}
	}
	return pl, nil
}

// fetchRetry performs up to retries additional attempts spaced by wait.
func (e *Engine) fetchRetry(ctx context.Context, u, resource string, limit int64, retries int, wait time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-e.clock.After(wait):
			}
		}
		body, err := e.fetch(ctx, u, resource, limit)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		e.logger.Debug().Err(err).
			Str(log.FieldSource, u).
			Int(log.FieldAttempt, attempt).
			Msg("fetch failed")
	}
	return nil, lastErr
}

func (e *Engine) fetch(ctx context.Context, u, resource string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		metrics.IncEngineFetch(resource, "error")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.IncEngineFetch(resource, "error")
		return nil, fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		metrics.IncEngineFetch(resource, "error")
		return nil, err
	}
	if int64(len(body)) > limit {
		metrics.IncEngineFetch(resource, "error")
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", u, limit)
	}
	metrics.IncEngineFetch(resource, "ok")
	return body, nil
}
