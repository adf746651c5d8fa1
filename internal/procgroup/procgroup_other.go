// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package procgroup

import "os/exec"

func set(*exec.Cmd) {}

// Without process groups only the leader can be reached, and there is no
// graceful signal; both steps kill.
func signalGroup(cmd *exec.Cmd, _ bool) error {
	return cmd.Process.Kill()
}
