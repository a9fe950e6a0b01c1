// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveSessionState(t *testing.T) {
	before := testutil.ToFloat64(PlaybackSessions.WithLabelValues("playing"))

	MoveSessionState("", "loading")
	MoveSessionState("loading", "playing")
	assert.Equal(t, before+1, testutil.ToFloat64(PlaybackSessions.WithLabelValues("playing")))

	MoveSessionState("playing", "playing")
	assert.Equal(t, before+1, testutil.ToFloat64(PlaybackSessions.WithLabelValues("playing")))

	MoveSessionState("playing", "")
	assert.Equal(t, before, testutil.ToFloat64(PlaybackSessions.WithLabelValues("playing")))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(PlaybackErrors.WithLabelValues("load_timeout"))
	IncPlaybackError("load_timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(PlaybackErrors.WithLabelValues("load_timeout")))

	retries := testutil.ToFloat64(PlaybackRetries)
	IncPlaybackRetry()
	assert.Equal(t, retries+1, testutil.ToFloat64(PlaybackRetries))
}

func TestObservePlaybackStartup(t *testing.T) {
	ObservePlaybackStartup("library", 1500*time.Millisecond)

	var m dto.Metric
	h, ok := PlaybackStartup.WithLabelValues("library").(interface{ Write(*dto.Metric) error })
	require.True(t, ok)
	require.NoError(t, h.Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}
