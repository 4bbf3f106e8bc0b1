// Package infra implements infrastructure concerns (processes, files, OS session, journal).
package infra

import (
	"fmt"
	"os"
	"slices"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// List returns name and arguments of every visible process.
func (pm *ProcessManagerImpl) List() ([]domain.ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	out := make([]domain.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		args, _ := p.CmdlineSlice()
		out = append(out, domain.ProcessInfo{PID: int(p.Pid), Name: name, Cmdline: args})
	}
	return out, nil
}

// FindByArgs returns PIDs of processes whose argument list contains every
// one of args, excluding the current process.
func (pm *ProcessManagerImpl) FindByArgs(args ...string) ([]int, error) {
	procs, err := pm.List()
	if err != nil {
		return nil, err
	}
	return MatchArgs(procs, os.Getpid(), args...), nil
}

// MatchArgs filters a process table snapshot by exact argument membership.
func MatchArgs(procs []domain.ProcessInfo, self int, args ...string) []int {
	var found []int
	for _, p := range procs {
		if p.PID == self || len(p.Cmdline) == 0 {
			continue
		}
		ok := true
		for _, a := range args {
			if !slices.Contains(p.Cmdline[1:], a) {
				ok = false
				break
			}
		}
		if ok {
			found = append(found, p.PID)
		}
	}
	return found
}

// Kill terminates a process by PID.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning checks if a PID exists.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
