// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// ProcessTable is an in-memory process table implementing domain.ProcessManager.
type ProcessTable struct {
	mu      sync.Mutex
	self    int
	nextPID int
	procs   map[int]domain.ProcessInfo
	killed  []int
}

// NewProcessTable creates a table whose own process has PID self.
func NewProcessTable(self int) *ProcessTable {
	return &ProcessTable{
		self:    self,
		nextPID: 1000,
		procs:   map[int]domain.ProcessInfo{self: {PID: self, Name: "supervisor"}},
	}
}

// Spawn adds a process and returns its PID.
func (t *ProcessTable) Spawn(name string, args ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextPID++
	pid := t.nextPID
	t.procs[pid] = domain.ProcessInfo{PID: pid, Name: name, Cmdline: append([]string{name}, args...)}
	return pid
}

// Alive reports whether pid is still in the table.
func (t *ProcessTable) Alive(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.procs[pid]
	return ok
}

// Killed returns the PIDs killed so far, in order.
func (t *ProcessTable) Killed() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.killed...)
}

func (t *ProcessTable) List() ([]domain.ProcessInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.ProcessInfo, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (t *ProcessTable) FindByArgs(args ...string) ([]int, error) {
	procs, _ := t.List()
	var pids []int
	for _, p := range procs {
		if p.PID != t.self && hasAll(p.Cmdline, args) {
			pids = append(pids, p.PID)
		}
	}
	return pids, nil
}

func (t *ProcessTable) Kill(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.procs[pid]; !ok {
		return errors.New("no such process")
	}
	delete(t.procs, pid)
	t.killed = append(t.killed, pid)
	return nil
}

func (t *ProcessTable) IsRunning(pid int) bool { return t.Alive(pid) }

func (t *ProcessTable) GetCurrentPID() int { return t.self }

func hasAll(cmdline, args []string) bool {
	if len(cmdline) < 2 {
		return false
	}
	for _, want := range args {
		found := false
		for _, a := range cmdline[1:] {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Launcher starts daemons by spawning them into a ProcessTable.
type Launcher struct {
	Table *ProcessTable

	mu      sync.Mutex
	started []domain.DaemonRole
}

func (l *Launcher) Args(role domain.DaemonRole) []string {
	return []string{"daemon", "--role=" + string(role)}
}

func (l *Launcher) Start(role domain.DaemonRole) error {
	l.mu.Lock()
	l.started = append(l.started, role)
	l.mu.Unlock()
	l.Table.Spawn("supervisor", l.Args(role)...)
	return nil
}

// Started returns every role launched so far.
func (l *Launcher) Started() []domain.DaemonRole {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.DaemonRole(nil), l.started...)
}

// Clock is a settable domain.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Session records session actions.
type Session struct {
	mu        sync.Mutex
	Locks     int
	Shutdowns []time.Duration
}

func (s *Session) LockSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Locks++
	return nil
}

func (s *Session) RequestShutdown(delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shutdowns = append(s.Shutdowns, delay)
	return nil
}

// LockCount returns the number of session locks so far.
func (s *Session) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Locks
}

// Notifier records messages instead of showing them.
type Notifier struct {
	mu      sync.Mutex
	alerts  []string
	notices []string
}

func (n *Notifier) Alert(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, title)
}

func (n *Notifier) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

// Alerts returns the titles of every alert shown.
func (n *Notifier) Alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

// Notices returns the messages of every notification shown.
func (n *Notifier) Notices() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

// Ensure the fakes implement the domain interfaces.
var (
	_ domain.ProcessManager    = (*ProcessTable)(nil)
	_ domain.Launcher          = (*Launcher)(nil)
	_ domain.Clock             = (*Clock)(nil)
	_ domain.SessionController = (*Session)(nil)
	_ domain.Notifier          = (*Notifier)(nil)
)
