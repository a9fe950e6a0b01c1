// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Holder keeps the active configuration and swaps it atomically on reload.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	debounce time.Duration

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder creates a holder with an already loaded configuration.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current:  initial,
		loader:   loader,
		logger:   log.WithComponent("config"),
		debounce: reloadDebounce,
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the file again. On failure the previous
// configuration stays active.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)
	h.notifyListeners(next)
	h.logger.Info().Str(log.FieldEvent, "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher reloads on changes to the config file until ctx is done. It
// watches the parent directory so editors that replace the file are seen.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str(log.FieldEvent, "config.watcher_disabled").Msg("config file watcher disabled (env-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str(log.FieldEvent, "config.watcher_started").Str(log.FieldPath, path).Msg("watching config file for changes")
	go h.watchLoop(ctx, watcher, filepath.Clean(path))
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().Str(log.FieldEvent, "config.file_changed").Str("op", event.Op.String()).Msg("config file changed")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(h.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).Str(log.FieldEvent, "config.auto_reload_failed").Msg("automatic config reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(log.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

// RegisterListener registers ch for successful reloads. Sends never block;
// a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str(log.FieldEvent, "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(prev, next AppConfig) {
	if prev.LogLevel != next.LogLevel {
		h.logger.Info().Str("old", prev.LogLevel).Str("new", next.LogLevel).Msg("log level changed")
	}
	if prev.HLS.BaseURL != next.HLS.BaseURL {
		h.logger.Info().Str("old", prev.HLS.BaseURL).Str("new", next.HLS.BaseURL).Msg("hls base url changed")
	}
	if !slices.Equal(prev.Streams(), next.Streams()) {
		h.logger.Info().Int("old", len(prev.Streams())).Int("new", len(next.Streams())).Msg("camera list changed")
	}
}
