// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"sync"

	"github.com/ManuGH/livewatch/internal/history"
	"github.com/ManuGH/livewatch/internal/playback"
)

// Enqueuer accepts history events without blocking.
type Enqueuer interface {
	Enqueue(ev history.Event)
}

type transitionMark struct {
	state   playback.ViewState
	attempt int
}

// HistoryRecorder turns views into history events. A view counts as a
// transition when its state or attempt differs from the previous view of the
// same camera. Register Record with OnView and Forget with OnRemoved.
type HistoryRecorder struct {
	w Enqueuer

	mu   sync.Mutex
	last map[string]transitionMark
}

func NewHistoryRecorder(w Enqueuer) *HistoryRecorder {
	return &HistoryRecorder{w: w, last: make(map[string]transitionMark)}
}

// Record enqueues v when it is a transition.
func (h *HistoryRecorder) Record(v playback.View) {
	m := transitionMark{state: v.State, attempt: v.Attempt}
	h.mu.Lock()
	if prev, ok := h.last[v.ID]; ok && prev == m {
		h.mu.Unlock()
		return
	}
	h.last[v.ID] = m
	h.mu.Unlock()

	h.w.Enqueue(history.Event{
		CameraID:   v.ID,
		Generation: v.Generation,
		State:      string(v.State),
		Attempt:    v.Attempt,
		Message:    v.Message,
		At:         v.Since,
	})
}

// Forget drops the last seen view of a removed camera.
func (h *HistoryRecorder) Forget(id string) {
	h.mu.Lock()
	delete(h.last, id)
	h.mu.Unlock()
}

func (h *HistoryRecorder) tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.last)
}
