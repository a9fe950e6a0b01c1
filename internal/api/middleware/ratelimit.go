// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

const rateLimitedBody = `{"error":"rate_limited","detail":"too many requests"}`

// RateLimitConfig configures a sliding-window limiter.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc groups requests. Nil keys by client IP.
	KeyFunc httprate.KeyFunc
}

// RateLimit rejects requests over the limit with 429 and a Retry-After hint.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	key := cfg.KeyFunc
	if key == nil {
		key = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.WindowSize.Round(time.Second).Seconds())))

	return httprate.Limit(cfg.RequestLimit, cfg.WindowSize,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitedBody))
		}),
	)
}

// APIRateLimit allows each client IP rps stream API requests per second.
func APIRateLimit(rps int) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{RequestLimit: rps, WindowSize: time.Second})
}
