// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"time"
)

// AppConfig is the effective configuration after defaults, file and env.
type AppConfig struct {
	Version   string
	LogLevel  string
	API       APIConfig
	HLS       HLSConfig
	Cameras   []CameraConfig
	Engine    EngineConfig
	Snapshots SnapshotConfig
	History   HistoryConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

type APIConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	// MaxConns caps concurrent API connections. Zero means unlimited.
	MaxConns int
}

type HLSConfig struct {
	// BaseURL is the media server root cameras without an explicit URL are served from.
	BaseURL string
}

// CameraConfig is one monitored stream.
type CameraConfig struct {
	ID      string
	Name    string
	URL     string
	Enabled bool
}

type EngineConfig struct {
	Native  NativeEngineConfig
	Library LibraryEngineConfig
}

type NativeEngineConfig struct {
	// FFmpegBin enables native playback when it resolves to an executable.
	FFmpegBin string
}

type LibraryEngineConfig struct {
	Enabled        bool
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

type SnapshotConfig struct {
	Dir string
}

type HistoryConfig struct {
	// Path of the SQLite database. Empty disables the transition history.
	Path      string
	Retention int
}

type CacheConfig struct {
	// RedisAddr selects the Redis status cache. Empty keeps views in memory.
	RedisAddr string
	TTL       time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

type RateLimitConfig struct {
	RPS int
}

// Stream is a camera resolved to the address its session plays.
type Stream struct {
	ID   string
	Name string
	URL  string
}

// Streams returns the enabled cameras with their playback address. Cameras
// without an explicit URL play <hls base>/cam<ID>/index.m3u8.
func (c AppConfig) Streams() []Stream {
	out := make([]Stream, 0, len(c.Cameras))
	for _, cam := range c.Cameras {
		if !cam.Enabled {
			continue
		}
		out = append(out, Stream{ID: cam.ID, Name: cam.Name, URL: c.cameraURL(cam)})
	}
	return out
}

func (c AppConfig) cameraURL(cam CameraConfig) string {
	if cam.URL != "" {
		return cam.URL
	}
	return fmt.Sprintf("%s/cam%s/index.m3u8", strings.TrimRight(c.HLS.BaseURL, "/"), cam.ID)
}

// FileConfig mirrors the YAML layout. Pointers distinguish unset from zero.
type FileConfig struct {
	LogLevel  *string              `yaml:"logLevel"`
	API       *fileAPIConfig       `yaml:"api"`
	HLS       *fileHLSConfig       `yaml:"hls"`
	Cameras   []fileCameraConfig   `yaml:"cameras"`
	Engine    *fileEngineConfig    `yaml:"engine"`
	Snapshots *fileSnapshotConfig  `yaml:"snapshots"`
	History   *fileHistoryConfig   `yaml:"history"`
	Cache     *fileCacheConfig     `yaml:"cache"`
	Telemetry *fileTelemetryConfig `yaml:"telemetry"`
	RateLimit *fileRateLimitConfig `yaml:"rateLimit"`
}

type fileAPIConfig struct {
	ListenAddr      *string `yaml:"listenAddr"`
	ShutdownTimeout *string `yaml:"shutdownTimeout"`
	MaxConns        *int    `yaml:"maxConns"`
}

type fileHLSConfig struct {
	BaseURL *string `yaml:"baseURL"`
}

type fileCameraConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

type fileEngineConfig struct {
	Native *struct {
		FFmpegBin *string `yaml:"ffmpegBin"`
	} `yaml:"native"`
	Library *struct {
		Enabled        *bool   `yaml:"enabled"`
		RequestTimeout *string `yaml:"requestTimeout"`
		PollInterval   *string `yaml:"pollInterval"`
	} `yaml:"library"`
}

type fileSnapshotConfig struct {
	Dir *string `yaml:"dir"`
}

type fileHistoryConfig struct {
	Path      *string `yaml:"path"`
	Retention *int    `yaml:"retention"`
}

type fileCacheConfig struct {
	RedisAddr *string `yaml:"redisAddr"`
	TTL       *string `yaml:"ttl"`
}

type fileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	ServiceName  *string  `yaml:"serviceName"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}

type fileRateLimitConfig struct {
	RPS *int `yaml:"rps"`
}
