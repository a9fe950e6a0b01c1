// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldCameraID  = "camera_id"
	FieldClientID  = "client_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Playback fields
	FieldGeneration = "generation"
	FieldAttempt    = "attempt"
	FieldEngine     = "engine"
	FieldErrorClass = "error_class"
	FieldDetails    = "details"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldSource = "source"
	FieldPath   = "path"
)
