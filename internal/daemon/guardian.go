package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// GuardianConfig holds guardian daemon configuration.
type GuardianConfig struct {
	CheckInterval     time.Duration // How often to look for the supervisor
	HeartbeatInterval time.Duration // How often to update heartbeat
}

// DefaultGuardianConfig returns default guardian configuration.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		CheckInterval:     30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Guardian relaunches the supervisor when it disappears from the process table.
// It does not take the instance lock; a duplicate launch loses to the lock.
type Guardian struct {
	config         GuardianConfig
	processManager domain.ProcessManager
	launcher       domain.Launcher
	registry       domain.DaemonRegistry
	journal        domain.Journal
	daemon         domain.Daemon
	logger         *zap.Logger
}

// NewGuardian creates a new guardian daemon. registry and journal may be nil.
func NewGuardian(
	config GuardianConfig,
	pm domain.ProcessManager,
	launcher domain.Launcher,
	registry domain.DaemonRegistry,
	journal domain.Journal,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Guardian {
	return &Guardian{
		config:         config,
		processManager: pm,
		launcher:       launcher,
		registry:       registry,
		journal:        journal,
		daemon:         daemon,
		logger:         logger,
	}
}

// Run starts the guardian loop. This blocks until ctx is cancelled.
func (g *Guardian) Run(ctx context.Context) error {
	if g.registry != nil {
		if err := g.registry.Register(g.daemon); err != nil {
			g.logger.Warn("failed to register guardian", zap.Error(err))
		}
	}

	g.logger.Info("guardian daemon started", zap.Int("pid", g.daemon.PID))

	checkTicker := time.NewTicker(g.config.CheckInterval)
	heartbeatTicker := time.NewTicker(g.config.HeartbeatInterval)
	defer func() {
		checkTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guardian daemon stopping")
			return nil

		case <-checkTicker.C:
			g.CheckAndRelaunch()

		case <-heartbeatTicker.C:
			if g.registry == nil {
				continue
			}
			if err := g.registry.UpdateHeartbeat(domain.RoleGuardian); err != nil {
				g.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// CheckAndRelaunch starts a fresh supervisor if none is running.
// It reports whether a relaunch was attempted.
func (g *Guardian) CheckAndRelaunch() bool {
	pids, err := g.processManager.FindByArgs(g.launcher.Args(domain.RoleSupervisor)...)
	if err != nil {
		g.logger.Warn("failed to scan for supervisor", zap.Error(err))
		return false
	}
	if len(pids) > 0 {
		return false
	}

	g.logger.Info("supervisor not running, restarting...")
	detail := "supervisor restarted"
	if err := g.launcher.Start(domain.RoleSupervisor); err != nil {
		// Retried on the next poll.
		g.logger.Error("failed to restart supervisor", zap.Error(err))
		detail = "restart failed: " + err.Error()
	} else {
		g.logger.Info("supervisor restarted successfully")
	}

	if g.journal != nil {
		if err := g.journal.Record(domain.Event{At: time.Now(), Kind: domain.EventRelaunch, Detail: detail}); err != nil {
			g.logger.Debug("failed to journal relaunch", zap.Error(err))
		}
	}
	return true
}
