// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command daemon runs the livewatch playback supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/health"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/version"
)

// envConfigPath names the config file when --config is not given.
const envConfigPath = "LIVEWATCH_CONFIG"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{Level: "info", Service: "livewatch", Version: version.Version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := resolveConfigPath(*configPath)
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "livewatch", Version: cfg.Version})
	if path != "" {
		logger.Info().Str(log.FieldEvent, "config.loaded").Str(log.FieldPath, path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str(log.FieldEvent, "config.loaded").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	a, err := newApp(ctx, cfg, loader)
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "startup.failed").Msg("failed to build daemon")
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.API.ListenAddr).
		Int("cameras", len(cfg.Streams())).
		Msg("starting livewatch")

	if err := a.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Msg("daemon exiting")
}

func resolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	return strings.TrimSpace(config.ParseString(envConfigPath, ""))
}
