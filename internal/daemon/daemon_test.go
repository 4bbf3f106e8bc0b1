package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

type fakeProcessManager struct {
	mu      sync.Mutex
	running map[string][]int // role arg -> pids
	scanErr error
}

func (f *fakeProcessManager) List() ([]domain.ProcessInfo, error) { return nil, nil }
func (f *fakeProcessManager) Kill(pid int) error                  { return nil }
func (f *fakeProcessManager) IsRunning(pid int) bool              { return false }
func (f *fakeProcessManager) GetCurrentPID() int                  { return 1 }

func (f *fakeProcessManager) FindByArgs(args ...string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.running[args[len(args)-1]], nil
}

func (f *fakeProcessManager) setRunning(role domain.DaemonRole, pids ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running == nil {
		f.running = make(map[string][]int)
	}
	f.running[RoleArg(role)] = pids
}

type fakeLauncher struct {
	mu       sync.Mutex
	started  []domain.DaemonRole
	startErr error
}

func (f *fakeLauncher) Start(role domain.DaemonRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, role)
	return f.startErr
}

func (f *fakeLauncher) Args(role domain.DaemonRole) []string {
	return []string{DaemonCommand, RoleArg(role)}
}

func (f *fakeLauncher) roles() []domain.DaemonRole {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.started) == 0 {
		return nil
	}
	return append([]domain.DaemonRole{}, f.started...)
}

type fakeInstance struct {
	acquireErr error
	acquired   atomic.Bool
	released   atomic.Bool
}

func (f *fakeInstance) Acquire() error {
	if f.acquireErr != nil {
		return f.acquireErr
	}
	f.acquired.Store(true)
	return nil
}

func (f *fakeInstance) Release() error {
	f.released.Store(true)
	return nil
}

type countingTrigger struct{ ticks atomic.Int32 }

func (c *countingTrigger) Tick(ctx context.Context) []domain.FiredAction {
	c.ticks.Add(1)
	return nil
}

type countingEnforcer struct{ runs atomic.Int32 }

func (c *countingEnforcer) Enforce(ctx context.Context) (*domain.EnforcementResult, error) {
	c.runs.Add(1)
	return &domain.EnforcementResult{}, nil
}

type fakeRegistry struct {
	mu         sync.Mutex
	registered []domain.Daemon
	heartbeats int
}

func (f *fakeRegistry) Register(d domain.Daemon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, d)
	return nil
}

func (f *fakeRegistry) UpdateHeartbeat(role domain.DaemonRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeRegistry) GetAll() ([]domain.DaemonState, error) { return nil, nil }

type fakeJournal struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeJournal) Record(ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeJournal) Recent(limit int) ([]domain.Event, error) { return nil, nil }

type failingRunner struct{ err error }

func (f failingRunner) Run(ctx context.Context) error { return f.err }

type countingReloader struct{ reloads atomic.Int32 }

func (c *countingReloader) Reload() error {
	c.reloads.Add(1)
	return errors.New("config.json: unexpected end of JSON input")
}

func fastSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		TimeLoopInterval:      5 * time.Millisecond,
		ProcessLoopInterval:   5 * time.Millisecond,
		HeartbeatInterval:     5 * time.Millisecond,
		GuardianCheckInterval: 5 * time.Millisecond,
	}
}

// TestDefaultSupervisorConfig verifies default loop periods
func TestDefaultSupervisorConfig(t *testing.T) {
	config := DefaultSupervisorConfig()

	assert.Equal(t, 30*time.Second, config.TimeLoopInterval)
	assert.Equal(t, 5*time.Second, config.ProcessLoopInterval)
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, config.GuardianCheckInterval)
}

// TestDefaultGuardianConfig verifies default guardian configuration
func TestDefaultGuardianConfig(t *testing.T) {
	config := DefaultGuardianConfig()

	assert.Equal(t, 30*time.Second, config.CheckInterval)
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)
}

func TestExecLauncher_Args(t *testing.T) {
	l, err := NewExecLauncher("/usr/local/bin/supervisor")
	require.NoError(t, err)

	assert.Equal(t, []string{"daemon", "--role=supervisor"}, l.Args(domain.RoleSupervisor))
	assert.Equal(t, []string{"daemon", "--role=guardian"}, l.Args(domain.RoleGuardian))
}

func TestExecLauncher_StartMissingBinary(t *testing.T) {
	l, err := NewExecLauncher("/nonexistent/supervisor")
	require.NoError(t, err)

	assert.Error(t, l.Start(domain.RoleGuardian))
}

func TestSupervisor_RunsLoopsUntilCancelled(t *testing.T) {
	pm := &fakeProcessManager{}
	pm.setRunning(domain.RoleGuardian, 77)
	launcher := &fakeLauncher{}
	instance := &fakeInstance{}
	trigger := &countingTrigger{}
	enforcer := &countingEnforcer{}
	registry := &fakeRegistry{}

	s := NewSupervisor(fastSupervisorConfig(), trigger, enforcer, nil, instance, registry, pm, launcher, nil,
		domain.Daemon{PID: 1, Role: domain.RoleSupervisor}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return trigger.ticks.Load() >= 3 && enforcer.runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	assert.True(t, instance.acquired.Load())
	assert.True(t, instance.released.Load())
	assert.Empty(t, launcher.roles(), "guardian already running")
	require.Len(t, registry.registered, 1)
	assert.Equal(t, domain.RoleSupervisor, registry.registered[0].Role)
}

func TestSupervisor_AlreadyRunning(t *testing.T) {
	instance := &fakeInstance{acquireErr: domain.ErrAlreadyRunning}
	trigger := &countingTrigger{}
	launcher := &fakeLauncher{}

	s := NewSupervisor(fastSupervisorConfig(), trigger, &countingEnforcer{}, nil, instance, nil,
		&fakeProcessManager{}, launcher, nil, domain.Daemon{}, zap.NewNop())

	err := s.Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Zero(t, trigger.ticks.Load())
	assert.Empty(t, launcher.roles())
	assert.False(t, instance.released.Load())
}

func TestSupervisor_EnsureGuardian(t *testing.T) {
	tests := []struct {
		name    string
		running []int
		scanErr error
		want    []domain.DaemonRole
	}{
		{name: "starts missing guardian", want: []domain.DaemonRole{domain.RoleGuardian}},
		{name: "leaves running guardian", running: []int{42}},
		{name: "scan failure does nothing", scanErr: errors.New("denied")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := &fakeProcessManager{scanErr: tt.scanErr}
			pm.setRunning(domain.RoleGuardian, tt.running...)
			launcher := &fakeLauncher{}
			s := NewSupervisor(fastSupervisorConfig(), &countingTrigger{}, &countingEnforcer{}, nil, &fakeInstance{},
				nil, pm, launcher, nil, domain.Daemon{}, zap.NewNop())

			s.EnsureGuardian()

			assert.Equal(t, tt.want, launcher.roles())
		})
	}
}

func TestGuardian_CheckAndRelaunch(t *testing.T) {
	tests := []struct {
		name         string
		running      []int
		startErr     error
		wantRelaunch bool
		wantDetail   string
	}{
		{name: "supervisor present", running: []int{10}},
		{name: "supervisor absent", wantRelaunch: true, wantDetail: "supervisor restarted"},
		{name: "relaunch fails", startErr: errors.New("exec format error"), wantRelaunch: true, wantDetail: "restart failed: exec format error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := &fakeProcessManager{}
			pm.setRunning(domain.RoleSupervisor, tt.running...)
			launcher := &fakeLauncher{startErr: tt.startErr}
			journal := &fakeJournal{}
			g := NewGuardian(DefaultGuardianConfig(), pm, launcher, nil, journal, domain.Daemon{}, zap.NewNop())

			got := g.CheckAndRelaunch()

			assert.Equal(t, tt.wantRelaunch, got)
			if !tt.wantRelaunch {
				assert.Empty(t, launcher.roles())
				assert.Empty(t, journal.events)
				return
			}
			assert.Equal(t, []domain.DaemonRole{domain.RoleSupervisor}, launcher.roles())
			require.Len(t, journal.events, 1)
			assert.Equal(t, domain.EventRelaunch, journal.events[0].Kind)
			assert.Equal(t, tt.wantDetail, journal.events[0].Detail)
		})
	}
}

func TestGuardian_RunPollsAndStops(t *testing.T) {
	pm := &fakeProcessManager{}
	launcher := &fakeLauncher{}
	registry := &fakeRegistry{}
	g := NewGuardian(GuardianConfig{CheckInterval: 5 * time.Millisecond, HeartbeatInterval: 5 * time.Millisecond},
		pm, launcher, registry, nil, domain.Daemon{PID: 2, Role: domain.RoleGuardian}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(launcher.roles()) > 0 }, 2*time.Second, 5*time.Millisecond)
	pm.setRunning(domain.RoleSupervisor, 10)
	n := len(launcher.roles())
	time.Sleep(30 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.LessOrEqual(t, len(launcher.roles()), n+1, "no relaunch once the supervisor is back")
}

func TestSupervisor_LoopsSurviveFailingConfigWatcher(t *testing.T) {
	enforcer := &countingEnforcer{}
	s := NewSupervisor(fastSupervisorConfig(), &countingTrigger{}, enforcer, nil, &fakeInstance{}, nil,
		&fakeProcessManager{}, &fakeLauncher{}, failingRunner{err: errors.New("inotify: too many open files")},
		domain.Daemon{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)

	assert.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded, "Run returned before ctx ended")
	assert.Greater(t, enforcer.runs.Load(), int32(5))
}

func TestSupervisor_ReloadsConfigEveryTick(t *testing.T) {
	store := &countingReloader{}
	trigger := &countingTrigger{}
	enforcer := &countingEnforcer{}
	s := NewSupervisor(fastSupervisorConfig(), trigger, enforcer, store, &fakeInstance{}, nil,
		&fakeProcessManager{}, &fakeLauncher{}, nil, domain.Daemon{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return enforcer.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Failed reloads keep the loops running.
	assert.Equal(t, trigger.ticks.Load()+enforcer.runs.Load(), store.reloads.Load())
}
