// Package usecase contains application business logic.
package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/schedule"
)

// BlockedTitle is the title of the notification shown after a kill.
const BlockedTitle = "Distracting program blocked"

// EnforcerImpl implements domain.Enforcer: it kills blacklisted processes
// while a supervision window is in progress.
type EnforcerImpl struct {
	processManager domain.ProcessManager
	store          domain.ConfigStore
	notifier       domain.Notifier
	journal        domain.Journal
	clock          domain.Clock
	logger         *zap.Logger
}

// NewEnforcer creates a new process enforcer.
func NewEnforcer(
	pm domain.ProcessManager,
	store domain.ConfigStore,
	notifier domain.Notifier,
	journal domain.Journal,
	clock domain.Clock,
	logger *zap.Logger,
) *EnforcerImpl {
	return &EnforcerImpl{
		processManager: pm,
		store:          store,
		notifier:       notifier,
		journal:        journal,
		clock:          clock,
		logger:         logger,
	}
}

// EffectiveBlacklist returns the lower-cased active process names that must
// not run at now: for each item in its window, its own blacklist if enabled,
// otherwise the global blacklist.
func EffectiveBlacklist(cfg *domain.Config, now time.Time) map[string]bool {
	names := make(map[string]bool)
	if !schedule.IsRestricted(cfg.Items, now) {
		return names
	}
	for _, item := range cfg.Items {
		if !schedule.InWindow(item, now) {
			continue
		}
		list := cfg.GlobalBlacklist
		if item.EnableOwnBlacklist {
			list = item.Blacklist
		}
		for _, e := range list {
			if e.Active && strings.TrimSpace(e.Name) != "" {
				names[strings.ToLower(strings.TrimSpace(e.Name))] = true
			}
		}
	}
	return names
}

// Enforce runs one pass of the process loop.
func (e *EnforcerImpl) Enforce(ctx context.Context) (*domain.EnforcementResult, error) {
	began := time.Now()
	start := e.clock.Now()
	cfg := e.store.Snapshot()

	result := &domain.EnforcementResult{
		Restricted:  schedule.IsRestricted(cfg.Items, start),
		KilledPIDs:  make([]int, 0),
		KilledNames: make([]string, 0),
		Errors:      make([]error, 0),
		ExecutedAt:  start,
	}
	if !result.Restricted {
		return result, nil
	}

	blacklist := EffectiveBlacklist(cfg, start)
	for name := range blacklist {
		result.Blacklist = append(result.Blacklist, name)
	}
	sort.Strings(result.Blacklist)
	if len(blacklist) == 0 {
		return result, nil
	}

	procs, err := e.processManager.List()
	if err != nil {
		e.logger.Warn("failed to list processes", zap.Error(err))
		result.Errors = append(result.Errors, err)
		return result, err
	}

	self := e.processManager.GetCurrentPID()
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		if p.PID == self || !blacklist[strings.ToLower(p.Name)] {
			continue
		}

		if err := e.processManager.Kill(p.PID); err != nil {
			// Process already gone or access denied.
			e.logger.Warn("failed to kill process",
				zap.Int("pid", p.PID),
				zap.String("name", p.Name),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		e.logger.Info("killed process",
			zap.Int("pid", p.PID),
			zap.String("name", p.Name))
		result.KilledPIDs = append(result.KilledPIDs, p.PID)
		result.KilledNames = append(result.KilledNames, p.Name)
		e.notifier.Notify(BlockedTitle, "Terminated process: "+p.Name)

		if e.journal != nil {
			if err := e.journal.Record(domain.Event{At: start, Kind: domain.EventProcessKill, Detail: p.Name}); err != nil {
				e.logger.Debug("failed to journal kill", zap.Error(err))
			}
		}
	}

	result.DurationMs = time.Since(began).Milliseconds()
	return result, nil
}

// Ensure EnforcerImpl implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcerImpl)(nil)
