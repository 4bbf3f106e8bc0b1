// Package config resolves runtime settings: defaults, then an optional YAML
// file, then SUPERVISOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "SUPERVISOR"

// SettingsFileName is looked up inside the data directory.
const SettingsFileName = "settings.yaml"

// ExecMode represents whether the supervisor runs for one user or system-wide.
type ExecMode string

const (
	// ExecModeUser keeps state under the user's home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with state under /var/lib.
	ExecModeSystem ExecMode = "system"
)

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// Settings holds every tunable of the daemons and the CLI.
// No envconfig defaults: values already set by the YAML file must survive Process.
type Settings struct {
	Mode       ExecMode `yaml:"-" ignored:"true"`
	DataDir    string   `yaml:"data_dir" envconfig:"DATA_DIR"`
	ConfigFile string   `yaml:"config_file" envconfig:"CONFIG_FILE"`
	LogFile    string   `yaml:"log_file" envconfig:"LOG_FILE"`
	LogLevel   string   `yaml:"log_level" envconfig:"LOG_LEVEL"`

	TimeLoopInterval      time.Duration `yaml:"time_loop_interval" envconfig:"TIME_LOOP_INTERVAL"`
	ProcessLoopInterval   time.Duration `yaml:"process_loop_interval" envconfig:"PROCESS_LOOP_INTERVAL"`
	WatchdogInterval      time.Duration `yaml:"watchdog_interval" envconfig:"WATCHDOG_INTERVAL"`
	GuardianCheckInterval time.Duration `yaml:"guardian_check_interval" envconfig:"GUARDIAN_CHECK_INTERVAL"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	ReloadDebounce        time.Duration `yaml:"reload_debounce" envconfig:"RELOAD_DEBOUNCE"`

	AlertDuration time.Duration `yaml:"alert_duration" envconfig:"ALERT_DURATION"`
	ShutdownDelay time.Duration `yaml:"shutdown_delay" envconfig:"SHUTDOWN_DELAY"`
	RepeatActions bool          `yaml:"repeat_actions" envconfig:"REPEAT_ACTIONS"`
}

// Default returns the settings for the current effective user.
func Default() *Settings {
	if os.Geteuid() == 0 {
		return defaultsFor(ExecModeSystem, "/var/lib/supervisor")
	}
	return defaultsFor(ExecModeUser, filepath.Join(RealUserHome(), ".supervisor"))
}

func defaultsFor(mode ExecMode, dataDir string) *Settings {
	return &Settings{
		Mode:                  mode,
		DataDir:               dataDir,
		ConfigFile:            filepath.Join(dataDir, "config.json"),
		LogFile:               filepath.Join(dataDir, "supervisor.log"),
		LogLevel:              "info",
		TimeLoopInterval:      30 * time.Second,
		ProcessLoopInterval:   5 * time.Second,
		WatchdogInterval:      30 * time.Second,
		GuardianCheckInterval: 60 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		ReloadDebounce:        200 * time.Millisecond,
		AlertDuration:         10 * time.Second,
		ShutdownDelay:         60 * time.Second,
	}
}

// Load resolves settings. path may be empty, in which case
// <dataDir>/settings.yaml is used if it exists.
func Load(path string) (*Settings, error) {
	s := Default()
	if env := os.Getenv(EnvPrefix + "_DATA_DIR"); env != "" {
		s = defaultsFor(s.Mode, env)
	}
	if path == "" {
		path = filepath.Join(s.DataDir, SettingsFileName)
	}

	if err := s.mergeFile(path); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	s.fillDerived()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	dataDir := s.DataDir
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	// A relocated data dir moves the derived paths with it unless they were set too.
	if s.DataDir != dataDir {
		moved := defaultsFor(s.Mode, s.DataDir)
		if s.ConfigFile == filepath.Join(dataDir, "config.json") {
			s.ConfigFile = moved.ConfigFile
		}
		if s.LogFile == filepath.Join(dataDir, "supervisor.log") {
			s.LogFile = moved.LogFile
		}
	}
	return nil
}

func (s *Settings) fillDerived() {
	if s.ConfigFile == "" {
		s.ConfigFile = filepath.Join(s.DataDir, "config.json")
	}
	if s.LogFile == "" {
		s.LogFile = filepath.Join(s.DataDir, "supervisor.log")
	}
}

// Validate rejects settings the daemons cannot run with.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	intervals := map[string]time.Duration{
		"time_loop_interval":      s.TimeLoopInterval,
		"process_loop_interval":   s.ProcessLoopInterval,
		"watchdog_interval":       s.WatchdogInterval,
		"guardian_check_interval": s.GuardianCheckInterval,
		"heartbeat_interval":      s.HeartbeatInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if s.ShutdownDelay < 0 || s.AlertDuration < 0 {
		return errors.New("shutdown_delay and alert_duration must not be negative")
	}
	return nil
}

// JournalPath is the encrypted journal database.
func (s *Settings) JournalPath() string {
	return filepath.Join(s.DataDir, "journal.db")
}

// KeyPath is the journal encryption key file.
func (s *Settings) KeyPath() string {
	return filepath.Join(s.DataDir, ".journal.key")
}

// RealUserHome returns the real user's home directory, even when running under sudo.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
