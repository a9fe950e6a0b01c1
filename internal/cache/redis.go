// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/livewatch/internal/resilience"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// BreakerThreshold consecutive failures stop Redis calls for BreakerReset.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// RedisCache is a Redis-backed Cache that also publishes updates.
type RedisCache struct {
	client  *redis.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// NewRedisCache connects to Redis and fails when it is unreachable.
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to Redis cache")
	threshold, reset := cfg.BreakerThreshold, cfg.BreakerReset
	if threshold <= 0 {
		threshold = 5
	}
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return &RedisCache{
		client:  client,
		breaker: resilience.NewCircuitBreaker("redis", threshold, reset),
		logger:  logger,
	}, nil
}

// call runs fn through the breaker. A missing key is not a failure.
func (c *RedisCache) call(fn func(ctx context.Context) error) error {
	var result error
	err := c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		result = fn(ctx)
		if errors.Is(result, redis.Nil) {
			return nil
		}
		return result
	})
	if err != nil {
		return err
	}
	return result
}

// BreakerState reports whether Redis calls are currently short-circuited.
func (c *RedisCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *RedisCache) Get(key string) ([]byte, bool) {
	var val []byte
	err := c.call(func(ctx context.Context) error {
		var err error
		val, err = c.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) || errors.Is(err, resilience.ErrCircuitOpen) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return val, true
}

func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) {
	err := c.call(func(ctx context.Context) error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisCache) Delete(key string) {
	err := c.call(func(ctx context.Context) error {
		return c.client.Del(ctx, key).Err()
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
	}
}

// Publish sends payload on a Redis channel.
func (c *RedisCache) Publish(channel string, payload []byte) {
	err := c.call(func(ctx context.Context) error {
		return c.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn().Err(err).Str("channel", channel).Msg("redis publish failed")
	}
}

func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis dbsize failed")
		size = 0
	}
	return Stats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		CurrentSize: int(size),
	}
}

func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
