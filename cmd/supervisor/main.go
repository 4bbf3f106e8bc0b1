// Package main is the CLI entry point for supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/supervisor/internal/config"
	"github.com/eliteGoblin/focusd/supervisor/internal/daemon"
	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
	"github.com/eliteGoblin/focusd/supervisor/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// settingsEnv carries --settings to the daemons the CLI spawns.
const settingsEnv = config.EnvPrefix + "_SETTINGS"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Supervision windows - locks, shutdowns and blocked programs on a schedule",
	Long: `supervisor enforces daily supervision windows. When a window starts it
locks the session, shuts the computer down or shows a reminder, and while
the window lasts it kills blacklisted programs.

Items cannot be edited, disabled or deleted while their window is active
or starts within 30 minutes, and the supervisor cannot be quit then either.`,
	Version:      Version,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the supervisor daemon (it starts its guardian)",
	Long: `Starts the supervisor daemon in the background. The supervisor runs the
time and process loops and launches a guardian that restarts it if it is killed.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemons, items and recent enforcement events",
	RunE:  runStatus,
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop the supervisor and its guardian (refused during a window)",
	RunE:  runQuit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning daemons
var daemonCmd = &cobra.Command{
	Use:    daemon.DaemonCommand,
	Hidden: true,
	RunE:   runDaemon,
}

var (
	settingsPath string
	daemonRole   string
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default <data dir>/settings.yaml)")
	daemonCmd.Flags().StringVar(&daemonRole, "role", "", "Daemon role (supervisor/guardian)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(blacklistCmd)
	rootCmd.AddCommand(quitCmd)
	rootCmd.AddCommand(tomatoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

// loadSettings resolves settings from --settings, then the inherited environment.
func loadSettings() (*config.Settings, error) {
	path := settingsPath
	if path == "" {
		path = os.Getenv(settingsEnv)
	}
	s, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := os.MkdirAll(s.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return s, nil
}

// app bundles what the one-shot commands need.
type app struct {
	settings *config.Settings
	logger   *zap.Logger
	store    *infra.FileConfigStore
	service  *usecase.Service
}

func newApp(clock domain.Clock) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	logger := createLogger(s)
	store := infra.NewFileConfigStore(s.ConfigFile, logger)
	store.Load()
	return &app{
		settings: s,
		logger:   logger,
		store:    store,
		service:  usecase.NewService(store, clock, logger),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// openJournal opens the journal only if a daemon has created it.
func openJournal(s *config.Settings) *infra.EncryptedJournal {
	if _, err := os.Stat(s.JournalPath()); err != nil {
		return nil
	}
	j, err := infra.OpenJournal(s.JournalPath(), infra.NewFileKeyProvider(s.KeyPath()))
	if err != nil {
		return nil
	}
	return j
}

func runStart(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if settingsPath != "" {
		abs, err := filepath.Abs(settingsPath)
		if err != nil {
			return fmt.Errorf("failed to resolve settings path: %w", err)
		}
		if err := os.Setenv(settingsEnv, abs); err != nil {
			return err
		}
	}

	pm := infra.NewProcessManager()
	launcher, err := daemon.NewExecLauncher("")
	if err != nil {
		return err
	}

	pids, err := pm.FindByArgs(launcher.Args(domain.RoleSupervisor)...)
	if err != nil {
		return fmt.Errorf("failed to scan processes: %w", err)
	}
	if len(pids) > 0 {
		fmt.Printf("supervisor is already running (pid %d)\n", pids[0])
		return nil
	}

	if err := launcher.Start(domain.RoleSupervisor); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	// Wait a moment for the daemon to take its instance lock
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== supervisor Started ===")
	fmt.Printf("Mode: %s\n", s.Mode)
	fmt.Printf("Data dir: %s\n", s.DataDir)
	fmt.Printf("Config: %s\n", s.ConfigFile)
	fmt.Printf("Log: %s\n", s.LogFile)
	fmt.Println("\nThe daemon runs in the background.")
	fmt.Println("Its guardian restarts it if it is killed.")
	fmt.Println("==========================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	pm := infra.NewProcessManager()
	launcher, err := daemon.NewExecLauncher("")
	if err != nil {
		return err
	}

	fmt.Println("\n=== supervisor Status ===")
	running := 0
	for _, role := range []domain.DaemonRole{domain.RoleSupervisor, domain.RoleGuardian} {
		pids, err := pm.FindByArgs(launcher.Args(role)...)
		switch {
		case err != nil:
			fmt.Printf("%-10s UNKNOWN (%v)\n", role+":", err)
		case len(pids) == 0:
			fmt.Printf("%-10s NOT RUNNING\n", role+":")
		default:
			running++
			fmt.Printf("%-10s RUNNING (pid %d)\n", role+":", pids[0])
		}
	}
	switch running {
	case 2:
		fmt.Println("Status: PROTECTED")
	case 1:
		fmt.Println("Status: DEGRADED (the other daemon will be restarted)")
	default:
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'supervisor start' to enable supervision.")
	}

	journal := openJournal(a.settings)
	if journal != nil {
		defer journal.Close()
		if states, err := journal.GetAll(); err == nil {
			for _, st := range states {
				if st.LastHeartbeat.IsZero() {
					continue
				}
				fmt.Printf("Last %s heartbeat: %s ago\n", st.Role, time.Since(st.LastHeartbeat).Round(time.Second))
			}
		}
	}

	fmt.Println("\nItems:")
	printStatus(a.service.Status())
	if a.service.IsRestrictedNow() {
		fmt.Println("\nEdits and quit are locked right now.")
	}

	if journal != nil {
		events, err := journal.Recent(10)
		if err == nil && len(events) > 0 {
			fmt.Println("\nRecent events:")
			for _, ev := range events {
				fmt.Printf("  %s  %-8s %-16s %s\n", ev.At.Format("01-02 15:04:05"), ev.Kind, ev.Item, ev.Detail)
			}
		}
	}
	fmt.Println("=========================")
	return nil
}

func runQuit(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.RequestQuit(); err != nil {
		return err
	}

	pm := infra.NewProcessManager()
	launcher, err := daemon.NewExecLauncher("")
	if err != nil {
		return err
	}

	// Guardian first, or it restarts the supervisor.
	stopped := 0
	for _, role := range []domain.DaemonRole{domain.RoleGuardian, domain.RoleSupervisor} {
		pids, err := pm.FindByArgs(launcher.Args(role)...)
		if err != nil {
			return fmt.Errorf("failed to scan for %s: %w", role, err)
		}
		for _, pid := range pids {
			if err := pm.Kill(pid); err != nil {
				return fmt.Errorf("failed to stop %s (pid %d): %w", role, pid, err)
			}
			a.logger.Info("daemon stopped", zap.String("role", string(role)), zap.Int("pid", pid))
			stopped++
		}
	}

	if stopped == 0 {
		fmt.Println("supervisor is not running")
		return nil
	}
	fmt.Println("supervisor stopped")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonRole == "" {
		return fmt.Errorf("--role is required")
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}

	logger := createLogger(s)
	defer func() { _ = logger.Sync() }()

	role := domain.DaemonRole(daemonRole)
	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       role,
		StartedAt:  time.Now(),
		AppVersion: Version,
	}

	// Initialize infrastructure
	pm := infra.NewProcessManager()
	launcher, err := daemon.NewExecLauncher("")
	if err != nil {
		return err
	}

	// The journal is best effort; the daemons run without it.
	var (
		journal  domain.Journal
		registry domain.DaemonRegistry
	)
	if j, err := infra.OpenJournal(s.JournalPath(), infra.NewFileKeyProvider(s.KeyPath())); err != nil {
		logger.Warn("journal unavailable", zap.Error(err))
	} else {
		defer j.Close()
		journal, registry = j, j
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	switch role {
	case domain.RoleSupervisor:
		clock := infra.SystemClock{}
		runner := &infra.RealCommandRunner{}
		store := infra.NewFileConfigStore(s.ConfigFile, logger)
		store.Load()
		notifier := infra.NewDesktopNotifier(runner, s.AlertDuration, logger)

		trigger := usecase.NewActionTrigger(
			usecase.TriggerConfig{ShutdownDelay: s.ShutdownDelay, RepeatActions: s.RepeatActions},
			store,
			infra.NewOSSession(runner, logger),
			notifier,
			journal,
			clock,
			logger,
		)
		enforcer := usecase.NewEnforcer(pm, store, notifier, journal, clock, logger)

		supervisor := daemon.NewSupervisor(
			daemon.SupervisorConfig{
				TimeLoopInterval:      s.TimeLoopInterval,
				ProcessLoopInterval:   s.ProcessLoopInterval,
				HeartbeatInterval:     s.HeartbeatInterval,
				GuardianCheckInterval: s.GuardianCheckInterval,
			},
			trigger,
			enforcer,
			store,
			infra.NewInstanceLock(s.DataDir, pm),
			registry,
			pm,
			launcher,
			infra.NewConfigWatcher(store, s.ReloadDebounce, logger),
			d,
			logger,
		)
		err := supervisor.Run(ctx)
		if errors.Is(err, domain.ErrAlreadyRunning) {
			// Lost the race to another instance; not a failure.
			return nil
		}
		return err

	case domain.RoleGuardian:
		guardian := daemon.NewGuardian(
			daemon.GuardianConfig{
				CheckInterval:     s.WatchdogInterval,
				HeartbeatInterval: s.HeartbeatInterval,
			},
			pm,
			launcher,
			registry,
			journal,
			d,
			logger,
		)
		return guardian.Run(ctx)

	default:
		return fmt.Errorf("unknown role: %s", role)
	}
}

func createLogger(s *config.Settings) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(s.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.OutputPaths = []string{s.LogFile}
	cfg.ErrorOutputPaths = []string{s.LogFile}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("supervisor %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
