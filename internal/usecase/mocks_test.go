package usecase

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// memStore implements domain.ConfigStore in memory and counts saves.
type memStore struct {
	mu    sync.Mutex
	cfg   *domain.Config
	saves int
}

func newMemStore(cfg *domain.Config) *memStore {
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}
	return &memStore{cfg: cfg.Clone()}
}

func (m *memStore) Load() *domain.Config { return m.Snapshot() }

func (m *memStore) Save(cfg *domain.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.Clone()
	m.saves++
	return nil
}

func (m *memStore) Snapshot() *domain.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

func (m *memStore) Update(fn func(cfg *domain.Config) error) error {
	cfg := m.Snapshot()
	if err := fn(cfg); err != nil {
		return err
	}
	return m.Save(cfg)
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// mutableClock is a settable domain.Clock.
type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// mockSession implements domain.SessionController.
type mockSession struct {
	locks     int
	shutdowns []time.Duration
	lockErr   error
}

func (m *mockSession) LockSession() error {
	m.locks++
	return m.lockErr
}

func (m *mockSession) RequestShutdown(delay time.Duration) error {
	m.shutdowns = append(m.shutdowns, delay)
	return nil
}

// mockNotifier implements domain.Notifier.
type mockNotifier struct {
	mu      sync.Mutex
	alerts  []string
	notices []string
}

func (m *mockNotifier) Alert(title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, title+": "+message)
}

func (m *mockNotifier) Notify(title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, message)
}

// mockJournal implements domain.Journal.
type mockJournal struct {
	events []domain.Event
}

func (m *mockJournal) Record(ev domain.Event) error {
	m.events = append(m.events, ev)
	return nil
}

func (m *mockJournal) Recent(limit int) ([]domain.Event, error) {
	return m.events, nil
}

// mockProcessManager implements domain.ProcessManager for testing.
type mockProcessManager struct {
	procs      []domain.ProcessInfo
	listErr    error
	killErr    map[int]error
	killedPIDs []int
	selfPID    int
}

func (m *mockProcessManager) List() ([]domain.ProcessInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.procs, nil
}

func (m *mockProcessManager) FindByArgs(args ...string) ([]int, error) {
	var pids []int
	for _, p := range m.procs {
		if strings.Contains(strings.Join(p.Cmdline, " "), strings.Join(args, " ")) {
			pids = append(pids, p.PID)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if err := m.killErr[pid]; err != nil {
		return err
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	for _, p := range m.procs {
		if p.PID == pid {
			return true
		}
	}
	return false
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.selfPID
}

var errAccessDenied = errors.New("access denied")

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.Local)
}

func studyItem() domain.SupervisionItem {
	return domain.SupervisionItem{
		ID:        "item-study",
		Name:      "Study",
		Start:     "09:00",
		End:       "11:00",
		Action:    domain.ActionLock,
		Active:    true,
		Blacklist: []domain.BlacklistEntry{},
	}
}
