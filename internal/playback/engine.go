// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "time"

// EngineKind names the path that serves an attempt.
type EngineKind string

const (
	EngineNone    EngineKind = ""
	EngineNative  EngineKind = "native"
	EngineLibrary EngineKind = "library"
)

// Segment is one media segment handed from the library engine to a sink.
type Segment struct {
	Sequence uint64
	URI      string
	Duration time.Duration
	Data     []byte
}

// NativeEvents are the sink's own playback notifications on the native path.
type NativeEvents struct {
	// LoadedMetadata fires once the sink knows enough to begin playback.
	LoadedMetadata func()
	// Error fires when the sink fails to play the bound source.
	Error func(error)
}

// MediaSink is the display surface. A session owns exactly one sink and at most
// one engine writes to it at a time.
type MediaSink interface {
	// CanPlayType reports whether the sink plays the content type natively.
	CanPlayType(contentType string) bool
	// SetSource binds a source address directly (native path). Events may be
	// delivered from any goroutine, including synchronously.
	SetSource(src string, events NativeEvents) error
	// AppendSegment feeds media produced by a library engine.
	AppendSegment(seg Segment) error
	// Play requests playback; rejection is not a failure of the attempt.
	Play() error
	// Detach releases the current source and resets the surface. Idempotent.
	Detach()
}

// EngineEvents are the two event classes an adaptive-streaming engine raises.
type EngineEvents struct {
	ManifestParsed func()
	Error          func(EngineError)
}

// StreamEngine is the external adaptive-streaming engine, consumed as a black box.
// Implementations must not block in Destroy and must not wait for their own
// event callbacks to return.
type StreamEngine interface {
	Listen(events EngineEvents)
	LoadSource(src string)
	AttachSink(sink MediaSink)
	// StartLoad resumes loading after a transient network failure.
	StartLoad()
	// RecoverMediaError renegotiates the decode pipeline in place.
	RecoverMediaError()
	Destroy()
}

// EngineProvider is the runtime capability check plus constructor for engines.
type EngineProvider interface {
	Supported() bool
	New(cfg EngineConfig) StreamEngine
}

// Signals are the two outcomes a handle reports back to its session. They are
// always escalations: engine-internal recovery never reaches them.
type Signals struct {
	Ready func()
	Fail  func(error)
}

// Handle is one attached engine instance.
type Handle interface {
	Kind() EngineKind
	// Destroy stops the engine and drops all further events. Idempotent.
	Destroy()
}
