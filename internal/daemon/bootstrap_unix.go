//go:build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

// detach starts the child in a new session so it outlives the terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
