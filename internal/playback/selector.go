// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"sync"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Selector picks the playback path per attempt: the sink's native support
// first, then the adaptive-streaming engine, else ErrUnsupportedPlatform.
type Selector struct {
	provider EngineProvider
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// NewSelector creates a selector. provider may be nil when no engine is available.
func NewSelector(provider EngineProvider, clock clockwork.Clock) *Selector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Selector{
		provider: provider,
		clock:    clock,
		logger:   log.WithComponent("playback.selector"),
	}
}

// Attach binds src to sink through the first available path. The caller must
// have destroyed any previous handle for the same sink.
func (sel *Selector) Attach(src string, sink MediaSink, sig Signals) (Handle, error) {
	if sink.CanPlayType(HLSContentType) {
		return sel.attachNative(src, sink, sig), nil
	}
	if sel.provider != nil && sel.provider.Supported() {
		return sel.attachLibrary(src, sink, sig), nil
	}
	return nil, ErrUnsupportedPlatform
}

// nativeHandle forwards sink events until destroyed.
type nativeHandle struct {
	mu        sync.Mutex
	sink      MediaSink
	destroyed bool
}

func (sel *Selector) attachNative(src string, sink MediaSink, sig Signals) Handle {
	h := &nativeHandle{sink: sink}
	err := sink.SetSource(src, NativeEvents{
		LoadedMetadata: func() {
			if h.alive() {
				sig.Ready()
			}
		},
		Error: func(err error) {
			if h.alive() {
				sig.Fail(&SinkError{Err: err})
			}
		},
	})
	if err != nil {
		sig.Fail(&SinkError{Err: err})
	}
	return h
}

func (h *nativeHandle) alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.destroyed
}

func (h *nativeHandle) Kind() EngineKind { return EngineNative }

func (h *nativeHandle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.mu.Unlock()
	h.sink.Detach()
}

// libraryHandle owns one engine instance and performs the engine-level
// recovery that never consumes an outer retry slot.
type libraryHandle struct {
	mu        sync.Mutex
	engine    StreamEngine
	sig       Signals
	clock     clockwork.Clock
	logger    zerolog.Logger
	resume    clockwork.Timer
	recovered bool
	destroyed bool
}

func (sel *Selector) attachLibrary(src string, sink MediaSink, sig Signals) Handle {
	h := &libraryHandle{
		engine: sel.provider.New(LiveEngineConfig()),
		sig:    sig,
		clock:  sel.clock,
		logger: sel.logger.With().Str(log.FieldEngine, string(EngineLibrary)).Logger(),
	}
	h.engine.Listen(EngineEvents{
		ManifestParsed: h.onManifestParsed,
		Error:          h.onError,
	})
	h.engine.LoadSource(src)
	h.engine.AttachSink(sink)
	return h
}

func (h *libraryHandle) Kind() EngineKind { return EngineLibrary }

func (h *libraryHandle) onManifestParsed() {
	h.mu.Lock()
	dead := h.destroyed
	h.mu.Unlock()
	if !dead {
		h.sig.Ready()
	}
}

func (h *libraryHandle) onError(ev EngineError) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}

	switch ev.Kind {
	case KindNetwork:
		if !ev.Fatal {
			if h.resume == nil {
				h.resume = h.clock.AfterFunc(NetworkResumeDelay, h.resumeLoad)
				metrics.IncEngineRecovery("network_resume")
			}
			h.mu.Unlock()
			h.logger.Warn().Str(log.FieldDetails, ev.Details).Msg("transient network error, resuming load shortly")
			return
		}
	case KindMedia:
		if !ev.Fatal && !h.recovered {
			h.recovered = true
			h.mu.Unlock()
			metrics.IncEngineRecovery("media_recover")
			h.logger.Warn().Str(log.FieldDetails, ev.Details).Msg("media error, attempting in-place recovery")
			h.engine.RecoverMediaError()
			return
		}
	default:
		if !ev.Fatal {
			h.mu.Unlock()
			h.logger.Debug().Str(log.FieldDetails, ev.Details).Msg("ignoring non-fatal engine error")
			return
		}
		h.mu.Unlock()
		h.Destroy()
		h.sig.Fail(&ev)
		return
	}
	h.mu.Unlock()
	h.sig.Fail(&ev)
}

func (h *libraryHandle) resumeLoad() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.resume = nil
	h.mu.Unlock()
	h.engine.StartLoad()
}

func (h *libraryHandle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	if h.resume != nil {
		h.resume.Stop()
		h.resume = nil
	}
	h.mu.Unlock()
	h.engine.Destroy()
}
