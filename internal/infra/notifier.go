package infra

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

const notifyDuration = 5 * time.Second

// DesktopNotifier implements domain.Notifier with the platform's dialog
// and notification tools. Every message is shown on its own goroutine.
type DesktopNotifier struct {
	goos          string
	runner        CommandRunner
	alertDuration time.Duration
	logger        *zap.Logger
	wg            sync.WaitGroup
}

// NewDesktopNotifier creates a notifier whose alerts close after alertDuration.
func NewDesktopNotifier(runner CommandRunner, alertDuration time.Duration, logger *zap.Logger) *DesktopNotifier {
	if alertDuration <= 0 {
		alertDuration = 10 * time.Second
	}
	return &DesktopNotifier{
		goos:          runtime.GOOS,
		runner:        runner,
		alertDuration: alertDuration,
		logger:        logger,
	}
}

// Alert shows a dialog that closes on acknowledgement or after the alert duration.
func (n *DesktopNotifier) Alert(title, message string) {
	name, args := alertCommand(n.goos, title, message, n.alertDuration)
	n.run(name, args)
}

// Notify shows a transient notification.
func (n *DesktopNotifier) Notify(title, message string) {
	name, args := notifyCommand(n.goos, title, message)
	n.run(name, args)
}

// Wait blocks until every shown message has closed.
func (n *DesktopNotifier) Wait() {
	n.wg.Wait()
}

func (n *DesktopNotifier) run(name string, args []string) {
	if name == "" {
		n.logger.Debug("notifications not supported", zap.String("os", n.goos))
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.runner.Run(name, args...); err != nil {
			n.logger.Debug("notification failed", zap.String("cmd", name), zap.Error(err))
		}
	}()
}

func alertCommand(goos, title, message string, d time.Duration) (string, []string) {
	secs := strconv.Itoa(int(d / time.Second))
	switch goos {
	case "linux":
		return "notify-send", []string{"-u", "critical", "-t", strconv.Itoa(int(d / time.Millisecond)), title, message}
	case "darwin":
		script := `display dialog "` + appleScriptEscape(message) + `" with title "` + appleScriptEscape(title) +
			`" buttons {"OK"} default button "OK" giving up after ` + secs
		return "osascript", []string{"-e", script}
	case "windows":
		return "msg", []string{"*", "/time:" + secs, title + ": " + message}
	}
	return "", nil
}

func notifyCommand(goos, title, message string) (string, []string) {
	switch goos {
	case "linux":
		return "notify-send", []string{"-t", strconv.Itoa(int(notifyDuration / time.Millisecond)), title, message}
	case "darwin":
		script := `display notification "` + appleScriptEscape(message) + `" with title "` + appleScriptEscape(title) + `"`
		return "osascript", []string{"-e", script}
	case "windows":
		return "msg", []string{"*", "/time:" + strconv.Itoa(int(notifyDuration/time.Second)), title + ": " + message}
	}
	return "", nil
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Ensure DesktopNotifier implements domain.Notifier.
var _ domain.Notifier = (*DesktopNotifier)(nil)
