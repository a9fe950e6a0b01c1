// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "time"

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusRetrying   Status = "retrying"
	StatusPlaying    Status = "playing"
	StatusFailed     Status = "failed"
)

// ViewState is what a UI renders: a spinner, a spinner with a count, the
// picture, or an error with a retry button.
type ViewState string

const (
	ViewIdle     ViewState = "idle"
	ViewLoading  ViewState = "loading"
	ViewRetrying ViewState = "retrying"
	ViewPlaying  ViewState = "playing"
	ViewFailed   ViewState = "failed"
)

// View is the read-only projection of a session. It carries no logic.
type View struct {
	ID          string     `json:"id"`
	State       ViewState  `json:"state"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	Message     string     `json:"message,omitempty"`
	Source      string     `json:"source,omitempty"`
	Engine      EngineKind `json:"engine,omitempty"`
	Generation  uint64     `json:"generation"`
	Since       time.Time  `json:"since"`
}

// CanRetry reports whether the manual retry affordance should be offered.
func (v View) CanRetry() bool {
	return v.State == ViewFailed && v.Source != ""
}

func viewState(s Status) ViewState {
	switch s {
	case StatusConnecting:
		return ViewLoading
	case StatusRetrying:
		return ViewRetrying
	case StatusPlaying:
		return ViewPlaying
	case StatusFailed:
		return ViewFailed
	default:
		return ViewIdle
	}
}

// sameProjection compares views ignoring the timestamp.
func sameProjection(a, b View) bool {
	a.Since, b.Since = time.Time{}, time.Time{}
	return a == b
}
