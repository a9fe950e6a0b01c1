// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkListenAddr(logger, cfg.API.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.Snapshots.Dir != "" {
		if err := checkWritableDir(logger, cfg.Snapshots.Dir); err != nil {
			return fmt.Errorf("snapshot directory check failed: %w", err)
		}
	}
	if cfg.History.Path != "" {
		if err := checkWritableDir(logger, filepath.Dir(cfg.History.Path)); err != nil {
			return fmt.Errorf("history directory check failed: %w", err)
		}
	}
	checkEngines(logger, cfg)

	if len(cfg.Streams()) == 0 {
		logger.Warn().Msg("no enabled cameras configured; the supervisor starts empty")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Debug().Str("addr", addr).Msg("API listen address is valid")
	return nil
}

// checkWritableDir creates path when missing and probes it with a temp file.
func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str("path", path).Msg("directory is writable")
	return nil
}

// checkEngines only warns: a missing engine shows up as a failed stream.
func checkEngines(logger zerolog.Logger, cfg config.AppConfig) {
	native := false
	if bin := strings.TrimSpace(cfg.Engine.Native.FFmpegBin); bin != "" {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Str("ffmpeg", bin).Err(err).Msg("ffmpeg binary not found; native playback disabled")
		} else {
			native = true
		}
	}
	if !native && !cfg.Engine.Library.Enabled {
		logger.Warn().Msg("no playback engine available; every stream will fail as unsupported")
	}
}
