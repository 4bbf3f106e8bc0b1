package daemon

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// DaemonCommand is the hidden CLI subcommand that runs a daemon role.
const DaemonCommand = "daemon"

// RoleArg is the flag that selects the role, as it appears in the process table.
func RoleArg(role domain.DaemonRole) string {
	return "--role=" + string(role)
}

// ExecLauncher implements domain.Launcher by re-executing a binary in daemon mode.
type ExecLauncher struct {
	binaryPath string
}

// NewExecLauncher creates a launcher for binaryPath, or the running executable if empty.
func NewExecLauncher(binaryPath string) (*ExecLauncher, error) {
	if binaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		binaryPath = exe
	}
	return &ExecLauncher{binaryPath: binaryPath}, nil
}

// Args returns the arguments that start, and identify, a daemon of role.
func (l *ExecLauncher) Args(role domain.DaemonRole) []string {
	return []string{DaemonCommand, RoleArg(role)}
}

// Start spawns a detached daemon. It does not wait for it.
func (l *ExecLauncher) Start(role domain.DaemonRole) error {
	cmd := exec.Command(l.binaryPath, l.Args(role)...)
	detach(cmd)

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", role, err)
	}
	return cmd.Process.Release()
}

// Ensure ExecLauncher implements domain.Launcher.
var _ domain.Launcher = (*ExecLauncher)(nil)
