// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", ...; empty or unknown means info
	Output  io.Writer // defaults to os.Stdout
	Service string    // defaults to "livewatch"
	Version string    // attached to every entry when set
}

var base atomic.Pointer[zerolog.Logger]

// Configure replaces the global logger. The daemon calls it at startup and
// again after every configuration reload so a new log level applies at once.
func Configure(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "livewatch"
	}

	zc := zerolog.New(out).With().Timestamp().Str("service", service)
	if cfg.Version != "" {
		zc = zc.Str("version", cfg.Version)
	}
	l := zc.Logger()
	base.Store(&l)
}

func logger() zerolog.Logger {
	if l := base.Load(); l != nil {
		return *l
	}
	Configure(Config{})
	return *base.Load()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}
