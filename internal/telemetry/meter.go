// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "livewatch.playback"

	// AttemptOutcomesMetric counts finished playback attempts by outcome.
	AttemptOutcomesMetric = "livewatch.playback.attempt.outcomes"

	OutcomeKey = "outcome"
)

// RecordAttemptOutcome counts one finished attempt. outcome is "playing" or
// the flattened error class. The meter is looked up per call so providers
// installed after startup are honored.
func RecordAttemptOutcome(ctx context.Context, outcome string) {
	meter := otel.GetMeterProvider().Meter(meterName)
	counter, err := meter.Int64Counter(AttemptOutcomesMetric,
		metric.WithDescription("Finished playback attempts by outcome"))
	if err != nil {
		otel.Handle(err)
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String(OutcomeKey, outcome)))
}
