package domain

import (
	"context"
	"time"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// List returns a snapshot of the process table.
	// Rows for processes that vanish mid-scan are skipped.
	List() ([]ProcessInfo, error)

	// FindByArgs returns PIDs of processes whose command line contains
	// every one of the given arguments.
	FindByArgs(args ...string) ([]int, error)

	// Kill terminates a process by PID.
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// ConfigStore owns the persisted Config.
// Implementation: whole-file JSON replaced atomically on every save.
type ConfigStore interface {
	// Load reads durable storage. Missing or corrupt storage yields the
	// default config, which is persisted again.
	Load() *Config

	// Save persists the whole config.
	Save(cfg *Config) error

	// Snapshot returns a deep copy of the current in-memory config.
	Snapshot() *Config

	// Update applies fn to the latest config and saves it, unless fn fails.
	Update(fn func(cfg *Config) error) error
}

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SessionController performs OS session actions.
type SessionController interface {
	// LockSession locks the interactive session immediately.
	LockSession() error

	// RequestShutdown asks the OS to power off after delay.
	// Fire-and-forget: the request is never recalled.
	RequestShutdown(delay time.Duration) error
}

// Notifier shows messages to the user. Implementations must not block the caller.
type Notifier interface {
	// Alert shows a prominent reminder that self-dismisses after a fixed
	// duration or when acknowledged.
	Alert(title, message string)

	// Notify shows a transient notification.
	Notify(title, message string)
}

// Launcher starts daemon processes.
type Launcher interface {
	// Start spawns a detached daemon with the given role.
	Start(role DaemonRole) error

	// Args returns the command-line arguments that identify a daemon
	// of the given role in the process table.
	Args(role DaemonRole) []string
}

// DaemonRegistry records which daemons are running for the status command.
type DaemonRegistry interface {
	// Register saves the daemon's PID and version.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness display.
	UpdateHeartbeat(role DaemonRole) error

	// GetAll returns every registered daemon.
	GetAll() ([]DaemonState, error)
}

// Journal records enforcement events.
type Journal interface {
	Record(ev Event) error
	Recent(limit int) ([]Event, error)
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// InstanceGuard ensures only one supervisor runs per machine.
type InstanceGuard interface {
	// Acquire records the current process as the holder, or returns
	// ErrAlreadyRunning if a live process already holds it.
	Acquire() error

	// Release removes the marker if we hold it.
	Release() error
}

// ActionTrigger runs one tick of the time enforcement loop.
type ActionTrigger interface {
	Tick(ctx context.Context) []FiredAction
}

// Enforcer runs one tick of the process enforcement loop.
type Enforcer interface {
	Enforce(ctx context.Context) (*EnforcementResult, error)
}
