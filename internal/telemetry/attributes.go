// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across packages.
const (
	CameraIDKey           = "camera.id"
	PlaybackGenerationKey = "playback.generation"
	PlaybackAttemptKey    = "playback.attempt"
	PlaybackEngineKey     = "playback.engine"
	PlaybackSourceKey     = "playback.source"
	ErrorClassKey         = "error.class"
)

// PlaybackAttributes describes one playback attempt.
func PlaybackAttributes(cameraID, source string, generation uint64, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CameraIDKey, cameraID),
		attribute.Int64(PlaybackGenerationKey, int64(generation)),
		attribute.Int(PlaybackAttemptKey, attempt),
	}
	if source != "" {
		attrs = append(attrs, attribute.String(PlaybackSourceKey, source))
	}
	return attrs
}

// EngineAttribute names the playback path serving an attempt.
func EngineAttribute(engine string) attribute.KeyValue {
	return attribute.String(PlaybackEngineKey, engine)
}

// ErrorClassAttribute tags a span with a flattened error class.
func ErrorClassAttribute(class string) attribute.KeyValue {
	return attribute.String(ErrorClassKey, class)
}
