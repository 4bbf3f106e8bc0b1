package infra

import (
	"sync"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	selfPID     int
}

func newMockProcessManager(self int) *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: map[int]bool{self: true},
		selfPID:     self,
	}
}

func (m *mockProcessManager) List() ([]domain.ProcessInfo, error) {
	var out []domain.ProcessInfo
	for pid, running := range m.runningPIDs {
		if running {
			out = append(out, domain.ProcessInfo{PID: pid})
		}
	}
	return out, nil
}

func (m *mockProcessManager) FindByArgs(args ...string) ([]int, error) {
	return nil, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.selfPID
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// Ensure mockProcessManager implements domain.ProcessManager
var _ domain.ProcessManager = (*mockProcessManager)(nil)

// recordingRunner captures commands instead of running them.
type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingRunner) Run(name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.err
}

func (r *recordingRunner) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string{}, r.calls...)
}
