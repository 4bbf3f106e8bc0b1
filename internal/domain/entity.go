// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	// RoleSupervisor hosts the enforcement loops (the "main program").
	RoleSupervisor DaemonRole = "supervisor"
	// RoleGuardian keeps the supervisor alive.
	RoleGuardian DaemonRole = "guardian"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string // Version of the app binary
}

// DaemonState is the last known state of a daemon, as recorded in the journal.
type DaemonState struct {
	Role          DaemonRole
	PID           int
	AppVersion    string
	LastHeartbeat time.Time
}

// Action is what happens when a supervision window is entered.
type Action string

const (
	ActionLock          Action = "lock"
	ActionShutdown      Action = "shutdown"
	ActionAlert         Action = "alert"
	ActionBlacklistOnly Action = "blacklist_only"
)

// legacyActions maps labels written by older config files to actions.
var legacyActions = map[string]Action{
	"关机":          ActionShutdown,
	"锁定":          ActionLock,
	"提醒":          ActionAlert,
	"仅启用黑名单（不弹窗）": ActionBlacklistOnly,
	"blacklistonly": ActionBlacklistOnly,
}

// ParseAction converts user or file input to an Action.
func ParseAction(s string) (Action, error) {
	trimmed := strings.TrimSpace(s)
	switch a := Action(strings.ToLower(trimmed)); a {
	case ActionLock, ActionShutdown, ActionAlert, ActionBlacklistOnly:
		return a, nil
	}
	if a, ok := legacyActions[trimmed]; ok {
		return a, nil
	}
	if a, ok := legacyActions[strings.ToLower(trimmed)]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionLock, ActionShutdown, ActionAlert, ActionBlacklistOnly:
		return true
	}
	return false
}

// UnmarshalJSON accepts canonical names as well as legacy labels.
// Unknown values are kept verbatim so validation can report them.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseAction(s); err == nil {
		*a = parsed
		return nil
	}
	*a = Action(s)
	return nil
}

// BlacklistEntry is a process name that gets killed during a window.
type BlacklistEntry struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// SupervisionItem is a named daily time window with an enforcement action.
type SupervisionItem struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Start              string           `json:"start"` // "HH:MM"
	End                string           `json:"end"`   // "HH:MM"
	Action             Action           `json:"action"`
	Active             bool             `json:"active"`
	EnableOwnBlacklist bool             `json:"enableOwnBlacklist"`
	Blacklist          []BlacklistEntry `json:"blacklist"`
}

// Clone returns a deep copy of the item.
func (it SupervisionItem) Clone() SupervisionItem {
	out := it
	out.Blacklist = append([]BlacklistEntry{}, it.Blacklist...)
	return out
}

// DefaultTomatoDurationSeconds is 25 minutes.
const DefaultTomatoDurationSeconds = 1500

// Config is everything persisted to the config file.
type Config struct {
	Items                 []SupervisionItem `json:"items"`
	GlobalBlacklist       []BlacklistEntry  `json:"globalBlacklist"`
	TomatoDurationSeconds int               `json:"tomatoDurationSeconds"`
}

// DefaultConfig returns an empty configuration.
func DefaultConfig() *Config {
	return &Config{
		Items:                 []SupervisionItem{},
		GlobalBlacklist:       []BlacklistEntry{},
		TomatoDurationSeconds: DefaultTomatoDurationSeconds,
	}
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := &Config{
		Items:                 make([]SupervisionItem, len(c.Items)),
		GlobalBlacklist:       append([]BlacklistEntry{}, c.GlobalBlacklist...),
		TomatoDurationSeconds: c.TomatoDurationSeconds,
	}
	for i, it := range c.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// FindItem returns the index of the item with the given ID, or -1.
func (c *Config) FindItem(id string) int {
	for i, it := range c.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// ProcessInfo is one row of the process table.
type ProcessInfo struct {
	PID     int
	Name    string
	Cmdline []string
}

// EnforcementResult captures what happened during a single process-loop tick.
type EnforcementResult struct {
	Restricted  bool
	Blacklist   []string // effective, lower-cased
	KilledPIDs  []int
	KilledNames []string
	Errors      []error
	ExecutedAt  time.Time
	DurationMs  int64
}

// FiredAction is an action executed by the time loop.
type FiredAction struct {
	ItemID   string
	ItemName string
	Action   Action
	FiredAt  time.Time
	Err      error
}

// EventKind classifies journal events.
type EventKind string

const (
	EventActionFired EventKind = "action"
	EventProcessKill EventKind = "kill"
	EventRelaunch    EventKind = "relaunch"
)

// Event is a journal record.
type Event struct {
	At     time.Time
	Kind   EventKind
	Item   string
	Detail string
}
