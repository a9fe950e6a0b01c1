// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse_InvalidValuesFallBackToDefault(t *testing.T) {
	t.Setenv("LIVEWATCH_TEST_INT", "twelve")
	t.Setenv("LIVEWATCH_TEST_DUR", "soon")
	t.Setenv("LIVEWATCH_TEST_BOOL", "maybe")
	t.Setenv("LIVEWATCH_TEST_FLOAT", "half")

	assert.Equal(t, 7, ParseInt("LIVEWATCH_TEST_INT", 7))
	assert.Equal(t, 3*time.Second, ParseDuration("LIVEWATCH_TEST_DUR", 3*time.Second))
	assert.True(t, ParseBool("LIVEWATCH_TEST_BOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("LIVEWATCH_TEST_FLOAT", 0.25), 1e-9)
}

func TestParse_ValidValues(t *testing.T) {
	t.Setenv("LIVEWATCH_TEST_INT", " 12 ")
	t.Setenv("LIVEWATCH_TEST_DUR", "1m30s")
	t.Setenv("LIVEWATCH_TEST_BOOL", "off")
	t.Setenv("LIVEWATCH_TEST_FLOAT", "0.5")

	assert.Equal(t, 12, ParseInt("LIVEWATCH_TEST_INT", 7))
	assert.Equal(t, 90*time.Second, ParseDuration("LIVEWATCH_TEST_DUR", time.Second))
	assert.False(t, ParseBool("LIVEWATCH_TEST_BOOL", true))
	assert.InDelta(t, 0.5, ParseFloat("LIVEWATCH_TEST_FLOAT", 0), 1e-9)
}
