// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultListenAddr, cfg.API.ListenAddr)
	assert.Equal(t, DefaultMaxConns, cfg.API.MaxConns)
	assert.Equal(t, DefaultHLSBaseURL, cfg.HLS.BaseURL)
	assert.True(t, cfg.Engine.Library.Enabled)
	assert.Equal(t, DefaultRequestTimeout, cfg.Engine.Library.RequestTimeout)
	assert.Equal(t, DefaultHistoryRetention, cfg.History.Retention)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.Cameras)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
api:
  listenAddr: ":9000"
  maxConns: 32
hls:
  baseURL: "http://media.lan:8888/"
cameras:
  - id: 1
    name: Gate
  - id: "lobby"
    url: "https://cdn.example/lobby/index.m3u8"
  - id: "3"
    enabled: false
engine:
  native:
    ffmpegBin: /usr/bin/ffmpeg
  library:
    enabled: false
    requestTimeout: 4s
    pollInterval: 500ms
history:
  path: /var/lib/livewatch/history.db
  retention: 50
cache:
  redisAddr: "redis:6379"
  ttl: 30s
telemetry:
  enabled: true
  exporter: http
  endpoint: "otel:4318"
  samplingRate: 0.25
rateLimit:
  rps: 5
`)
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.API.ListenAddr)
	assert.Equal(t, 32, cfg.API.MaxConns)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Engine.Native.FFmpegBin)
	assert.False(t, cfg.Engine.Library.Enabled)
	assert.Equal(t, 4*time.Second, cfg.Engine.Library.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.Library.PollInterval)
	assert.Equal(t, 50, cfg.History.Retention)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "http", cfg.Telemetry.Exporter)
	assert.InDelta(t, 0.25, cfg.Telemetry.SamplingRate, 1e-9)
	assert.Equal(t, 5, cfg.RateLimit.RPS)

	require.Len(t, cfg.Cameras, 3)
	assert.Equal(t, []Stream{
		{ID: "1", Name: "Gate", URL: "http://media.lan:8888/cam1/index.m3u8"},
		{ID: "lobby", URL: "https://cdn.example/lobby/index.m3u8"},
	}, cfg.Streams())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "logLevel: debug\napi:\n  listenAddr: \":9000\"\ncameras:\n  - id: 9\n")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvListen, ":7000")
	t.Setenv(EnvCameras, "1, 2,yard=http://yard.lan/live.m3u8")
	t.Setenv(EnvLibraryEnabled, "off")
	t.Setenv(EnvCacheTTL, "5s")
	t.Setenv(EnvHistoryRetention, "not-a-number")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":7000", cfg.API.ListenAddr)
	assert.False(t, cfg.Engine.Library.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.Equal(t, DefaultHistoryRetention, cfg.History.Retention, "invalid env falls back")
	assert.Equal(t, []Stream{
		{ID: "1", URL: DefaultHLSBaseURL + "/cam1/index.m3u8"},
		{ID: "2", URL: DefaultHLSBaseURL + "/cam2/index.m3u8"},
		{ID: "yard", URL: "http://yard.lan/live.m3u8"},
	}, cfg.Streams())
	assert.Contains(t, l.ConsumedEnvKeys, EnvCameras)
}

func TestLoad_StrictParsing(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		unknown bool
	}{
		{name: "unknown top-level key", body: "logLevel: info\nbogus: true\n", unknown: true},
		{name: "unknown nested key", body: "engine:\n  library:\n    retries: 3\n", unknown: true},
		{name: "multiple documents", body: "logLevel: info\n---\nlogLevel: debug\n"},
		{name: "bad duration", body: "cache:\n  ttl: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.body), "dev").Load()
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownConfigField))
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	_, err := NewLoader(writeConfig(t, ""), "dev").Load()
	assert.NoError(t, err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livewatch.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "dev").Load()
	assert.ErrorContains(t, err, "only YAML")
}

func TestValidate(t *testing.T) {
	valid := func() AppConfig {
		l := NewLoader("", "dev")
		cfg := AppConfig{}
		l.setDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{name: "duplicate camera", mutate: func(c *AppConfig) {
			c.Cameras = []CameraConfig{{ID: "1", Enabled: true}, {ID: "1", Enabled: true}}
		}, want: "duplicate id"},
		{name: "empty camera id", mutate: func(c *AppConfig) {
			c.Cameras = []CameraConfig{{Enabled: true}}
		}, want: "cameras[0].id"},
		{name: "rtsp camera url", mutate: func(c *AppConfig) {
			c.Cameras = []CameraConfig{{ID: "1", URL: "rtsp://cam/stream"}}
		}, want: "scheme must be http or https"},
		{name: "bad base url used by camera", mutate: func(c *AppConfig) {
			c.HLS.BaseURL = "media.lan"
			c.Cameras = []CameraConfig{{ID: "1"}}
		}, want: "hls.baseURL"},
		{name: "bad log level", mutate: func(c *AppConfig) { c.LogLevel = "loud" }, want: "logLevel"},
		{name: "retention", mutate: func(c *AppConfig) { c.History.Retention = 0 }, want: "history.retention"},
		{name: "exporter", mutate: func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, want: "telemetry.exporter"},
		{name: "max conns", mutate: func(c *AppConfig) { c.API.MaxConns = -1 }, want: "api.maxConns"},
		{name: "sampling", mutate: func(c *AppConfig) { c.Telemetry.SamplingRate = 2 }, want: "samplingRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	assert.NoError(t, Validate(valid()))
}

func TestLoad_NormalizesCameraNames(t *testing.T) {
	// "Cafe\u0301" is the decomposed form of "Café".
	path := writeConfig(t, "cameras:\n  - id: \" 7 \"\n    name: \"  Cafe\u0301 \"\n")
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	require.Len(t, cfg.Cameras, 1)
	assert.Equal(t, "7", cfg.Cameras[0].ID)
	assert.Equal(t, "Caf\u00e9", cfg.Cameras[0].Name)
}
