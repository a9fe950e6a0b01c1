// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	path := writeConfig(t, body)
	loader := NewLoader(path, "dev")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewHolder(cfg, loader), path
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	h, path := newTestHolder(t, "cameras:\n  - id: 1\n")
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("cameras:\n  - id: 1\n  - id: 2\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	got := <-ch
	assert.Len(t, got.Streams(), 2)
	assert.Len(t, h.Get().Streams(), 2)
}

func TestHolder_FailedReloadKeepsPrevious(t *testing.T) {
	h, path := newTestHolder(t, "cameras:\n  - id: 1\n")
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("cameras:\n  - id: 1\n  - id: 1\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))

	assert.Len(t, h.Get().Streams(), 1)
	assert.Empty(t, ch)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	h, _ := newTestHolder(t, "logLevel: info\n")
	ch := make(chan AppConfig)
	h.RegisterListener(ch)
	assert.NoError(t, h.Reload(context.Background()))
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	h, path := newTestHolder(t, "logLevel: info\n")
	h.debounce = 10 * time.Millisecond
	ch := make(chan AppConfig, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-ch:
			// A reload may observe the truncated file first.
			if cfg.LogLevel == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("watcher did not reload")
		}
	}
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	h := NewHolder(AppConfig{}, NewLoader("", "dev"))
	assert.NoError(t, h.StartWatcher(context.Background()))
}
