// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"encoding/json"
	"time"

	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/rs/zerolog"
)

const (
	// ViewKeyPrefix prefixes every cached view key.
	ViewKeyPrefix = "livewatch:view:"
	// ViewChannel carries view updates when the backing cache can publish.
	ViewChannel = "livewatch:views"
)

// Publisher is implemented by caches that can broadcast updates.
type Publisher interface {
	Publish(channel string, payload []byte)
}

// ViewStore keeps the latest playback view per camera.
type ViewStore struct {
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewViewStore wraps c. Views expire after ttl unless refreshed.
func NewViewStore(c Cache, ttl time.Duration, logger zerolog.Logger) *ViewStore {
	return &ViewStore{cache: c, ttl: ttl, logger: logger}
}

// ViewKey returns the cache key for a camera id.
func ViewKey(id string) string { return ViewKeyPrefix + id }

// Put stores v and publishes it when supported.
func (s *ViewStore) Put(v playback.View) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("camera_id", v.ID).Msg("encode view")
		return
	}
	s.cache.Set(ViewKey(v.ID), payload, s.ttl)
	if p, ok := s.cache.(Publisher); ok {
		p.Publish(ViewChannel, payload)
	}
}

// Get returns the cached view for id.
func (s *ViewStore) Get(id string) (playback.View, bool) {
	payload, ok := s.cache.Get(ViewKey(id))
	if !ok {
		return playback.View{}, false
	}
	var v playback.View
	if err := json.Unmarshal(payload, &v); err != nil {
		s.logger.Warn().Err(err).Str("camera_id", id).Msg("decode cached view")
		return playback.View{}, false
	}
	return v, true
}

// Delete drops the cached view for id.
func (s *ViewStore) Delete(id string) {
	s.cache.Delete(ViewKey(id))
}

// Cache exposes the backing cache for health checks.
func (s *ViewStore) Cache() Cache { return s.cache }
