// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs child processes in their own process group so a
// whole ffmpeg tree can be signalled at once.
package procgroup

import (
	"errors"
	"os/exec"

	"github.com/ManuGH/livewatch/internal/metrics"
)

// ErrKillFailed is returned when the group could not be signalled.
var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate sends SIGTERM to the command's process group and records the outcome.
// It never waits for the process; the exit is observed by whoever owns cmd.Wait.
// It is safe to call on nil or not yet started commands.
func Terminate(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := terminate(cmd)
	switch {
	case err == nil:
		metrics.IncProcTerminate("SIGTERM", "sent")
	default:
		metrics.IncProcTerminate("SIGTERM", "error")
		return errors.Join(ErrKillFailed, err)
	}
	return nil
}

// Kill sends SIGKILL to the command's process group.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := kill(cmd)
	if err != nil {
		metrics.IncProcTerminate("SIGKILL", "error")
		return errors.Join(ErrKillFailed, err)
	}
	metrics.IncProcTerminate("SIGKILL", "sent")
	return nil
}
