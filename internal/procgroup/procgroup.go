// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external player processes in their own process
// group and tears the whole group down again.
package procgroup

import (
	"errors"
	"os/exec"
	"time"

	xglog "github.com/ManuGH/playm3u/internal/log"
)

// ErrKillFailed means the group survived SIGKILL for the whole timeout.
var ErrKillFailed = errors.New("process group did not exit")

// Set configures cmd to start as the leader of a new process group.
// It must be called before cmd.Start for Terminate to reach child processes.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate stops the process group led by cmd: SIGTERM, then SIGKILL once
// grace has elapsed. waitCh must deliver the result of cmd.Wait; the value it
// yields is returned. A nil or unstarted cmd is a no-op.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := xglog.WithComponent("procgroup")
	pid := cmd.Process.Pid

	_ = signalGroup(cmd, false)
	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	logger.Warn().
		Str(xglog.FieldEvent, "procgroup.sigkill").
		Int("pid", pid).
		Dur("grace", grace).
		Msg("grace period exceeded, killing process group")
	_ = signalGroup(cmd, true)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace + time.Second):
		return ErrKillFailed
	}
}
