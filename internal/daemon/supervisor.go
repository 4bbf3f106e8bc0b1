// Package daemon implements the supervisor and guardian daemons.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// Runner is a long-running component that stops when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Reloader re-reads the persisted config into its in-memory snapshot.
type Reloader interface {
	Reload() error
}

// SupervisorConfig holds supervisor daemon configuration.
type SupervisorConfig struct {
	TimeLoopInterval      time.Duration // How often item actions are evaluated
	ProcessLoopInterval   time.Duration // How often blacklisted processes are killed
	HeartbeatInterval     time.Duration // How often to update heartbeat
	GuardianCheckInterval time.Duration // How often to check the guardian
}

// DefaultSupervisorConfig returns default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		TimeLoopInterval:      30 * time.Second,
		ProcessLoopInterval:   5 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		GuardianCheckInterval: 60 * time.Second,
	}
}

// Supervisor is the main enforcement daemon. It runs the time loop and the
// process loop, keeps the guardian alive, and hot-reloads the config.
type Supervisor struct {
	config         SupervisorConfig
	trigger        domain.ActionTrigger
	enforcer       domain.Enforcer
	store          Reloader
	instance       domain.InstanceGuard
	registry       domain.DaemonRegistry
	processManager domain.ProcessManager
	launcher       domain.Launcher
	configWatcher  Runner
	daemon         domain.Daemon
	logger         *zap.Logger
}

// NewSupervisor creates the supervisor daemon. store, registry and
// configWatcher may be nil.
func NewSupervisor(
	config SupervisorConfig,
	trigger domain.ActionTrigger,
	enforcer domain.Enforcer,
	store Reloader,
	instance domain.InstanceGuard,
	registry domain.DaemonRegistry,
	pm domain.ProcessManager,
	launcher domain.Launcher,
	configWatcher Runner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		config:         config,
		trigger:        trigger,
		enforcer:       enforcer,
		store:          store,
		instance:       instance,
		registry:       registry,
		processManager: pm,
		launcher:       launcher,
		configWatcher:  configWatcher,
		daemon:         daemon,
		logger:         logger,
	}
}

// Run acquires the single-instance lock and runs every loop until ctx is
// cancelled. It fails fast with domain.ErrAlreadyRunning.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.instance.Acquire(); err != nil {
		s.logger.Warn("supervisor not started", zap.Error(err))
		return err
	}
	defer func() {
		if err := s.instance.Release(); err != nil {
			s.logger.Warn("failed to release instance lock", zap.Error(err))
		}
	}()

	if s.registry != nil {
		if err := s.registry.Register(s.daemon); err != nil {
			s.logger.Warn("failed to register supervisor", zap.Error(err))
		}
	}

	s.logger.Info("supervisor daemon started",
		zap.Int("pid", s.daemon.PID),
		zap.String("version", s.daemon.AppVersion))

	s.EnsureGuardian()
	s.runTimeLoop(ctx)
	s.runProcessLoop(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return every(ctx, s.config.TimeLoopInterval, s.runTimeLoop) })
	g.Go(func() error { return every(ctx, s.config.ProcessLoopInterval, s.runProcessLoop) })
	g.Go(func() error {
		return every(ctx, s.config.GuardianCheckInterval, func(context.Context) { s.EnsureGuardian() })
	})
	if s.registry != nil {
		g.Go(func() error {
			return every(ctx, s.config.HeartbeatInterval, func(context.Context) {
				if err := s.registry.UpdateHeartbeat(domain.RoleSupervisor); err != nil {
					s.logger.Warn("failed to update heartbeat", zap.Error(err))
				}
			})
		})
	}
	if s.configWatcher != nil {
		g.Go(func() error {
			// A watcher failure must not stop the enforcement loops.
			if err := s.configWatcher.Run(ctx); err != nil {
				s.logger.Warn("config watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("supervisor daemon stopping")
	return err
}

// runTimeLoop fires the actions of items whose window is in progress.
func (s *Supervisor) runTimeLoop(ctx context.Context) {
	s.refresh()
	for _, fa := range s.trigger.Tick(ctx) {
		s.logger.Debug("action fired",
			zap.String("item", fa.ItemName),
			zap.String("action", string(fa.Action)))
	}
}

// runProcessLoop kills blacklisted processes.
func (s *Supervisor) runProcessLoop(ctx context.Context) {
	s.refresh()
	result, err := s.enforcer.Enforce(ctx)
	if err != nil {
		s.logger.Warn("enforcement failed", zap.Error(err))
		return
	}
	if len(result.KilledPIDs) > 0 {
		s.logger.Info("enforcement completed",
			zap.Int("processes_killed", len(result.KilledPIDs)),
			zap.Strings("names", result.KilledNames),
			zap.Int64("duration_ms", result.DurationMs))
	}
}

// refresh picks up config edits a missed file event would have delivered.
// On error the previous snapshot stays in force.
func (s *Supervisor) refresh() {
	if s.store == nil {
		return
	}
	if err := s.store.Reload(); err != nil {
		s.logger.Debug("config reload failed", zap.Error(err))
	}
}

// EnsureGuardian starts the guardian if no guardian process is running.
func (s *Supervisor) EnsureGuardian() {
	pids, err := s.processManager.FindByArgs(s.launcher.Args(domain.RoleGuardian)...)
	if err != nil {
		s.logger.Warn("failed to scan for guardian", zap.Error(err))
		return
	}
	if len(pids) > 0 {
		return
	}

	s.logger.Info("guardian not running, starting...")
	if err := s.launcher.Start(domain.RoleGuardian); err != nil {
		s.logger.Error("failed to start guardian", zap.Error(err))
		return
	}
	s.logger.Info("guardian started")
}

// every runs fn each interval until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
