// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

// Validate reports every problem in cfg joined into one error.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("logLevel: %w", err)
	}
	if cfg.API.ListenAddr == "" {
		add("api.listenAddr: must not be empty")
	}
	if cfg.API.ShutdownTimeout <= 0 {
		add("api.shutdownTimeout: must be positive")
	}
	if cfg.API.MaxConns < 0 {
		add("api.maxConns: must not be negative")
	}

	needsBase := false
	seen := make(map[string]struct{}, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		if cam.ID == "" {
			add("cameras[%d].id: must not be empty", i)
			continue
		}
		if _, dup := seen[cam.ID]; dup {
			add("cameras[%d].id: duplicate id %q", i, cam.ID)
		}
		seen[cam.ID] = struct{}{}
		if cam.URL == "" {
			needsBase = true
			continue
		}
		if err := validateHTTPURL(cam.URL); err != nil {
			add("cameras[%d].url: %w", i, err)
		}
	}
	if needsBase {
		if err := validateHTTPURL(cfg.HLS.BaseURL); err != nil {
			add("hls.baseURL: %w", err)
		}
	}

	if cfg.Engine.Library.RequestTimeout <= 0 {
		add("engine.library.requestTimeout: must be positive")
	}
	if cfg.Engine.Library.PollInterval < 0 {
		add("engine.library.pollInterval: must not be negative")
	}
	if cfg.History.Retention < 1 {
		add("history.retention: must be at least 1")
	}
	if cfg.Cache.TTL <= 0 {
		add("cache.ttl: must be positive")
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter: must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint: must not be empty")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate: must be within [0, 1]")
	}
	if cfg.RateLimit.RPS < 0 {
		add("rateLimit.rps: must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
