// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr       = ":8088"
	DefaultHLSBaseURL       = "http://127.0.0.1:8888"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultHistoryRetention = 200
	DefaultCacheTTL         = time.Minute
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultRateLimitRPS     = 50
	DefaultMaxConns         = 256
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means defaults and env only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the watched file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load runs defaults, strict file parse, env overrides and validation in that order.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.LogLevel = "info"
	cfg.API.ListenAddr = DefaultListenAddr
	cfg.API.ShutdownTimeout = DefaultShutdownTimeout
	cfg.API.MaxConns = DefaultMaxConns
	cfg.HLS.BaseURL = DefaultHLSBaseURL
	cfg.Engine.Library.Enabled = true
	cfg.Engine.Library.RequestTimeout = DefaultRequestTimeout
	cfg.History.Retention = DefaultHistoryRetention
	cfg.Cache.TTL = DefaultCacheTTL
	cfg.Telemetry.ServiceName = "livewatch"
	cfg.Telemetry.Exporter = "grpc"
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SamplingRate = 1.0
	cfg.RateLimit.RPS = DefaultRateLimitRPS
}

// loadFile parses the YAML file strictly. Unknown fields are fatal.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.LogLevel, src.LogLevel)

	if src.API != nil {
		setString(&dst.API.ListenAddr, src.API.ListenAddr)
		if err := setDuration(&dst.API.ShutdownTimeout, src.API.ShutdownTimeout, "api.shutdownTimeout"); err != nil {
			return err
		}
		if src.API.MaxConns != nil {
			dst.API.MaxConns = *src.API.MaxConns
		}
	}
	if src.HLS != nil {
		setString(&dst.HLS.BaseURL, src.HLS.BaseURL)
	}
	if src.Cameras != nil {
		dst.Cameras = make([]CameraConfig, 0, len(src.Cameras))
		for _, c := range src.Cameras {
			enabled := true
			if c.Enabled != nil {
				enabled = *c.Enabled
			}
			dst.Cameras = append(dst.Cameras, CameraConfig{
				ID:      strings.TrimSpace(c.ID),
				Name:    normalizeName(c.Name),
				URL:     strings.TrimSpace(c.URL),
				Enabled: enabled,
			})
		}
	}
	if src.Engine != nil {
		if n := src.Engine.Native; n != nil {
			setString(&dst.Engine.Native.FFmpegBin, n.FFmpegBin)
		}
		if lib := src.Engine.Library; lib != nil {
			if lib.Enabled != nil {
				dst.Engine.Library.Enabled = *lib.Enabled
			}
			if err := setDuration(&dst.Engine.Library.RequestTimeout, lib.RequestTimeout, "engine.library.requestTimeout"); err != nil {
				return err
			}
			if err := setDuration(&dst.Engine.Library.PollInterval, lib.PollInterval, "engine.library.pollInterval"); err != nil {
				return err
			}
		}
	}
	if src.Snapshots != nil {
		setString(&dst.Snapshots.Dir, src.Snapshots.Dir)
	}
	if src.History != nil {
		setString(&dst.History.Path, src.History.Path)
		if src.History.Retention != nil {
			dst.History.Retention = *src.History.Retention
		}
	}
	if src.Cache != nil {
		setString(&dst.Cache.RedisAddr, src.Cache.RedisAddr)
		if err := setDuration(&dst.Cache.TTL, src.Cache.TTL, "cache.ttl"); err != nil {
			return err
		}
	}
	if t := src.Telemetry; t != nil {
		if t.Enabled != nil {
			dst.Telemetry.Enabled = *t.Enabled
		}
		setString(&dst.Telemetry.ServiceName, t.ServiceName)
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			dst.Telemetry.SamplingRate = *t.SamplingRate
		}
	}
	if src.RateLimit != nil && src.RateLimit.RPS != nil {
		dst.RateLimit.RPS = *src.RateLimit.RPS
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.API.ListenAddr = l.envString(EnvListen, cfg.API.ListenAddr)
	cfg.HLS.BaseURL = l.envString(EnvHLSBaseURL, cfg.HLS.BaseURL)
	if raw := l.envString(EnvCameras, ""); raw != "" {
		cfg.Cameras = parseCameraList(raw)
	}
	cfg.Engine.Native.FFmpegBin = l.envString(EnvFFmpegBin, cfg.Engine.Native.FFmpegBin)
	cfg.Engine.Library.Enabled = l.envBool(EnvLibraryEnabled, cfg.Engine.Library.Enabled)
	cfg.Engine.Library.RequestTimeout = l.envDuration(EnvRequestTimeout, cfg.Engine.Library.RequestTimeout)
	cfg.Snapshots.Dir = l.envString(EnvSnapshotDir, cfg.Snapshots.Dir)
	cfg.History.Path = l.envString(EnvHistoryPath, cfg.History.Path)
	cfg.History.Retention = l.envInt(EnvHistoryRetention, cfg.History.Retention)
	cfg.Cache.RedisAddr = l.envString(EnvRedisAddr, cfg.Cache.RedisAddr)
	cfg.Cache.TTL = l.envDuration(EnvCacheTTL, cfg.Cache.TTL)
	cfg.Telemetry.Enabled = l.envBool(EnvTelemetry, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvOTLPExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTraceSampling, cfg.Telemetry.SamplingRate)
	cfg.RateLimit.RPS = l.envInt(EnvRateLimitRPS, cfg.RateLimit.RPS)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, *v, err)
	}
	*dst = d
	return nil
}

// normalizeName trims a camera display name and folds it to NFC so names
// typed on different systems compare equal.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
