// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink provides the display sinks the daemon plays streams into.
package sink

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrNativeUnavailable is returned by SetSource when no ffmpeg binary was found.
	ErrNativeUnavailable = errors.New("native HLS playback unavailable")
	// ErrEmptySegment is returned for segments without payload.
	ErrEmptySegment = errors.New("empty segment")
)

// Config describes one monitor sink.
type Config struct {
	// ID names the sink in logs and snapshot file names.
	ID string
	// FFmpegBin enables the native path when it resolves to an executable.
	FFmpegBin string
	// SnapshotDir receives the latest segment as <ID>.ts when set.
	SnapshotDir string
	// KillGrace is how long a terminated native process gets before SIGKILL.
	KillGrace time.Duration
}

// Stats is a point-in-time view of what the sink has received.
type Stats struct {
	Native       bool      `json:"native"`
	Playing      bool      `json:"playing"`
	Segments     int64     `json:"segments"`
	Bytes        int64     `json:"bytes"`
	LastSequence uint64    `json:"last_sequence"`
	LastFrameAt  time.Time `json:"last_frame_at,omitempty"`
	OutTime      string    `json:"out_time,omitempty"`
}

// Monitor is a headless sink. Library engines append segments to it; with an
// ffmpeg binary it also plays HLS natively by decoding the source to null.
type Monitor struct {
	cfg    Config
	ffmpeg string
	logger zerolog.Logger

	mu     sync.Mutex
	stats  Stats
	native *nativeProc
}

// NewMonitor creates a sink. A configured but missing ffmpeg binary only
// disables the native path.
func NewMonitor(cfg Config) *Monitor {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	m := &Monitor{
		cfg:    cfg,
		logger: log.WithComponent("sink").With().Str(log.FieldCameraID, cfg.ID).Logger(),
	}
	if cfg.FFmpegBin != "" {
		path, err := exec.LookPath(cfg.FFmpegBin)
		if err != nil {
			m.logger.Warn().Err(err).Str("ffmpeg_bin", cfg.FFmpegBin).Msg("ffmpeg not found, native playback disabled")
		} else {
			m.ffmpeg = path
		}
	}
	return m
}

var _ playback.MediaSink = (*Monitor)(nil)

// CanPlayType reports native support for HLS when ffmpeg is available.
func (m *Monitor) CanPlayType(contentType string) bool {
	return m.ffmpeg != "" && contentType == playback.HLSContentType
}

// SetSource starts native playback of src. Any previous native process is
// terminated first.
func (m *Monitor) SetSource(src string, events playback.NativeEvents) error {
	if m.ffmpeg == "" {
		return ErrNativeUnavailable
	}
	m.mu.Lock()
	prev := m.native
	m.native = nil
	m.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	p, err := startNative(m.ffmpeg, src, m.cfg.KillGrace, m.logger, nativeHooks{
		progress: m.onProgress,
		loaded:   events.LoadedMetadata,
		failed:   events.Error,
	})
	if err != nil {
		return fmt.Errorf("start native playback: %w", err)
	}

	m.mu.Lock()
	m.native = p
	m.stats.Native = true
	m.mu.Unlock()
	return nil
}

// AppendSegment records a segment delivered by a library engine.
func (m *Monitor) AppendSegment(seg playback.Segment) error {
	if len(seg.Data) == 0 {
		return fmt.Errorf("segment %d: %w", seg.Sequence, ErrEmptySegment)
	}
	if m.cfg.SnapshotDir != "" {
		path := filepath.Join(m.cfg.SnapshotDir, m.cfg.ID+".ts")
		if err := renameio.WriteFile(path, seg.Data, 0o644); err != nil {
			// A full disk must not look like a broken stream.
			m.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("snapshot write failed")
		}
	}

	m.mu.Lock()
	m.stats.Segments++
	m.stats.Bytes += int64(len(seg.Data))
	m.stats.LastSequence = seg.Sequence
	m.stats.LastFrameAt = time.Now()
	m.mu.Unlock()

	metrics.AddSinkSegment(len(seg.Data))
	return nil
}

// Play marks the sink as presenting. It never blocks.
func (m *Monitor) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Playing = true
	return nil
}

// Detach stops native playback and resets presentation state. It does not
// wait for the native process to exit.
func (m *Monitor) Detach() {
	m.mu.Lock()
	p := m.native
	m.native = nil
	m.stats.Playing = false
	m.stats.Native = false
	m.stats.OutTime = ""
	m.mu.Unlock()
	if p != nil {
		p.stop()
	}
}

// Stats returns a copy of the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) onProgress(p progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.LastFrameAt = time.Now()
	m.stats.Bytes = p.totalSize
	m.stats.OutTime = p.outTime.String()
}

// EnsureSnapshotDir creates dir when snapshots are enabled.
func EnsureSnapshotDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
