//go:build !windows

package mux

import (
	"os/exec"
	"syscall"
)

// interrupt sends SIGINT, the platform-appropriate interrupt signal
// this package's termination contract requires (spec.md §4.5).
func interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGINT)
}
