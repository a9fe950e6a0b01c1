// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/rs/zerolog"
)

// Environment keys. All of them override the file.
const (
	EnvLogLevel         = "LIVEWATCH_LOG_LEVEL"
	EnvListen           = "LIVEWATCH_LISTEN"
	EnvHLSBaseURL       = "LIVEWATCH_HLS_BASE_URL"
	EnvCameras          = "LIVEWATCH_CAMERAS"
	EnvFFmpegBin        = "LIVEWATCH_FFMPEG_BIN"
	EnvLibraryEnabled   = "LIVEWATCH_LIBRARY_ENABLED"
	EnvRequestTimeout   = "LIVEWATCH_REQUEST_TIMEOUT"
	EnvSnapshotDir      = "LIVEWATCH_SNAPSHOT_DIR"
	EnvHistoryPath      = "LIVEWATCH_HISTORY_PATH"
	EnvHistoryRetention = "LIVEWATCH_HISTORY_RETENTION"
	EnvRedisAddr        = "LIVEWATCH_REDIS_ADDR"
	EnvCacheTTL         = "LIVEWATCH_CACHE_TTL"
	EnvTelemetry        = "LIVEWATCH_TELEMETRY_ENABLED"
	EnvOTLPExporter     = "LIVEWATCH_OTLP_EXPORTER"
	EnvOTLPEndpoint     = "LIVEWATCH_OTLP_ENDPOINT"
	EnvTraceSampling    = "LIVEWATCH_TRACE_SAMPLING"
	EnvRateLimitRPS     = "LIVEWATCH_RATE_LIMIT_RPS"
)

func envLogger() zerolog.Logger { return log.WithComponent("config") }

// ParseString reads a string from the environment or returns defaultValue.
// An empty variable counts as unset.
func ParseString(key, defaultValue string) string {
	logger := envLogger()
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	lowerKey := strings.ToLower(key)
	if strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer and falls back to defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger := envLogger()
		logger.Warn().Err(err).Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseDuration reads a Go duration string and falls back to defaultValue on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger := envLogger()
		logger.Warn().Err(err).Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

// ParseBool accepts the strconv.ParseBool forms plus yes/no and on/off.
func ParseBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logger := envLogger()
		logger.Warn().Err(err).Str("key", key).Str("value", v).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
	return b
}

// ParseFloat reads a float and falls back to defaultValue on parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger := envLogger()
		logger.Warn().Err(err).Str("key", key).Str("value", v).Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	return f
}

// parseCameraList turns "1,2,front=http://host/x.m3u8" into cameras. Bare
// ids play from the HLS base URL.
func parseCameraList(raw string) []CameraConfig {
	var out []CameraConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, u, _ := strings.Cut(part, "=")
		out = append(out, CameraConfig{ID: strings.TrimSpace(id), URL: strings.TrimSpace(u), Enabled: true})
	}
	return out
}
