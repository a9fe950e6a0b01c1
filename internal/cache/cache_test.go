// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	c.Set("a", []byte("1"), time.Minute)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Zero(t, stats.CurrentSize)
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(0).(*memoryCache)
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"), time.Second)
	_, ok := c.Get("a")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired entries are misses")

	assert.Equal(t, 1, c.deleteExpired())
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Zero(t, stats.CurrentSize)
	require.NoError(t, c.Close())
}

func TestMemoryCache_JanitorStopsOnClose(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	c.Set("a", []byte("1"), time.Nanosecond)

	require.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}
