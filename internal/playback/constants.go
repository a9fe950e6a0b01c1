// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "time"

// Retry and watchdog bounds. They are fixed at this layer.
const (
	// MaxAutoRetries bounds consecutive failed attempts before a session fails.
	MaxAutoRetries = 5
	// LoadTimeout is the watchdog horizon for a single connection attempt.
	LoadTimeout = 15 * time.Second
	// RetryDelay is the fixed pause between a failed attempt and the next one.
	RetryDelay = 3 * time.Second
	// NetworkResumeDelay is how long the library path waits before telling the
	// engine to resume loading after a transient network error.
	NetworkResumeDelay = 3 * time.Second
)

// HLSContentType is the manifest MIME type sinks are asked about.
const HLSContentType = "application/vnd.apple.mpegurl"

// EngineConfig is the fixed record handed to the adaptive-streaming engine.
// The load retry fields describe the engine's own short-horizon retries; they
// are independent of the session's outer retry bound.
type EngineConfig struct {
	LowLatency            bool
	BackBufferLength      time.Duration
	MaxBufferLength       time.Duration
	LiveSyncDuration      time.Duration
	LiveMaxLatency        time.Duration
	LiveDurationInfinity  bool
	ManifestLoadMaxRetry  int
	ManifestLoadRetryWait time.Duration
	LevelLoadMaxRetry     int
	LevelLoadRetryWait    time.Duration
	FragLoadMaxRetry      int
	FragLoadRetryWait     time.Duration
}

// LiveEngineConfig returns the configuration tuned for low-latency live camera feeds.
func LiveEngineConfig() EngineConfig {
	return EngineConfig{
		LowLatency:            true,
		BackBufferLength:      30 * time.Second,
		MaxBufferLength:       10 * time.Second,
		LiveSyncDuration:      3 * time.Second,
		LiveMaxLatency:        10 * time.Second,
		LiveDurationInfinity:  true,
		ManifestLoadMaxRetry:  30,
		ManifestLoadRetryWait: 2 * time.Second,
		LevelLoadMaxRetry:     20,
		LevelLoadRetryWait:    2 * time.Second,
		FragLoadMaxRetry:      20,
		FragLoadRetryWait:     2 * time.Second,
	}
}
