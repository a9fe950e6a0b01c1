// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform means neither the sink nor an engine can play HLS.
	// It is terminal and never retried.
	ErrUnsupportedPlatform = errors.New("no playable HLS path on this platform")
	// ErrLoadTimeout is raised by the watchdog when an attempt makes no progress.
	ErrLoadTimeout = errors.New("stream load timed out")
	// ErrSessionClosed is returned for operations on a session whose owner is gone.
	ErrSessionClosed = errors.New("playback session closed")
)

// ErrorKind is the category the library engine reports with an error event.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindMedia   ErrorKind = "media"
	KindOther   ErrorKind = "other"
)

// EngineError is the payload of the engine's error event.
type EngineError struct {
	Kind    ErrorKind
	Fatal   bool
	Details string
	Err     error
}

func (e *EngineError) Error() string {
	fatal := "recoverable"
	if e.Fatal {
		fatal = "fatal"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (%s): %v", fatal, e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s %s error (%s)", fatal, e.Kind, e.Details)
}

func (e *EngineError) Unwrap() error { return e.Err }

// SinkError is raised by a native sink when playback of the bound source fails.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "sink playback error: " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }

// ErrorClass is the flattened taxonomy used for metrics and logs.
type ErrorClass string

const (
	ClassUnsupportedPlatform ErrorClass = "unsupported_platform"
	ClassLoadTimeout         ErrorClass = "load_timeout"
	ClassNetwork             ErrorClass = "network"
	ClassMedia               ErrorClass = "media"
	ClassOtherFatal          ErrorClass = "other_fatal"
	ClassPlayback            ErrorClass = "playback"
)

// Classify maps an attempt error onto the taxonomy. The native path and the
// watchdog cannot distinguish categories and land in a single class each.
func Classify(err error) ErrorClass {
	if errors.Is(err, ErrUnsupportedPlatform) {
		return ClassUnsupportedPlatform
	}
	if errors.Is(err, ErrLoadTimeout) {
		return ClassLoadTimeout
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case KindNetwork:
			return ClassNetwork
		case KindMedia:
			return ClassMedia
		default:
			return ClassOtherFatal
		}
	}
	return ClassPlayback
}
