//go:build windows

package mux

import (
	"os"
	"os/exec"
)

// interrupt sends os.Interrupt, the closest Windows equivalent of a
// Ctrl-C break for a child console process (spec.md §4.5).
func interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}
