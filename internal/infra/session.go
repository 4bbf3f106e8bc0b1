package infra

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// OSSession implements domain.SessionController with the platform's
// session and power commands.
type OSSession struct {
	goos   string
	runner CommandRunner
	logger *zap.Logger
}

// NewOSSession creates a session controller for the running platform.
func NewOSSession(runner CommandRunner, logger *zap.Logger) *OSSession {
	return &OSSession{goos: runtime.GOOS, runner: runner, logger: logger}
}

// LockSession locks the interactive session.
func (s *OSSession) LockSession() error {
	name, args, err := lockCommand(s.goos)
	if err != nil {
		return err
	}
	if err := s.runner.Run(name, args...); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	return nil
}

// RequestShutdown schedules a power-off after delay. The request is not tracked.
func (s *OSSession) RequestShutdown(delay time.Duration) error {
	name, args, err := shutdownCommand(s.goos, delay)
	if err != nil {
		return err
	}
	s.logger.Info("requesting shutdown", zap.Duration("delay", delay))
	if err := s.runner.Run(name, args...); err != nil {
		return fmt.Errorf("failed to request shutdown: %w", err)
	}
	return nil
}

func lockCommand(goos string) (string, []string, error) {
	switch goos {
	case "linux":
		return "loginctl", []string{"lock-session"}, nil
	case "darwin":
		return "pmset", []string{"displaysleepnow"}, nil
	case "windows":
		return "rundll32.exe", []string{"user32.dll,LockWorkStation"}, nil
	}
	return "", nil, fmt.Errorf("session lock not supported on %s", goos)
}

func shutdownCommand(goos string, delay time.Duration) (string, []string, error) {
	if delay < 0 {
		delay = 0
	}
	switch goos {
	case "linux", "darwin":
		// Unix shutdown takes whole minutes.
		mins := int((delay + time.Minute - 1) / time.Minute)
		when := "now"
		if mins > 0 {
			when = "+" + strconv.Itoa(mins)
		}
		return "shutdown", []string{"-h", when}, nil
	case "windows":
		return "shutdown", []string{"/s", "/t", strconv.Itoa(int(delay / time.Second))}, nil
	}
	return "", nil, fmt.Errorf("shutdown not supported on %s", goos)
}

// Ensure OSSession implements domain.SessionController.
var _ domain.SessionController = (*OSSession)(nil)
