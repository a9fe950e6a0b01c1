// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/rs/zerolog"
)

// Recorder is what the writer persists to.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Writer decouples producers from the database. Enqueue never blocks; when
// the buffer is full the event is dropped and logged.
type Writer struct {
	rec    Recorder
	queue  chan Event
	logger zerolog.Logger
}

// NewWriter creates a writer with a buffer of size events.
func NewWriter(rec Recorder, size int) *Writer {
	if size <= 0 {
		size = 256
	}
	return &Writer{
		rec:    rec,
		queue:  make(chan Event, size),
		logger: log.WithComponent("history"),
	}
}

// Enqueue schedules ev for persistence.
func (w *Writer) Enqueue(ev Event) {
	select {
	case w.queue <- ev:
	default:
		metrics.IncQueueDrop("history")
		w.logger.Warn().
			Str(log.FieldCameraID, ev.CameraID).
			Str(log.FieldNewState, ev.State).
			Msg("history queue full, dropping transition")
	}
}

// Run persists queued events until ctx is done, then drains what is left
// with a short deadline.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-w.queue:
			w.write(ctx, ev)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			for {
				select {
				case ev := <-w.queue:
					w.write(drainCtx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Writer) write(ctx context.Context, ev Event) {
	if err := w.rec.Record(ctx, ev); err != nil {
		w.logger.Error().Err(err).Str(log.FieldCameraID, ev.CameraID).Msg("failed to record transition")
	}
}
