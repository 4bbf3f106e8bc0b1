package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// Tomato is a pomodoro focus timer.
type Tomato struct {
	duration time.Duration
	step     time.Duration
	notifier domain.Notifier
}

// NewTomato creates a timer that counts down duration in one-second steps.
func NewTomato(duration time.Duration, notifier domain.Notifier) *Tomato {
	return &Tomato{duration: duration, step: time.Second, notifier: notifier}
}

// FormatRemaining renders a countdown as MM:SS.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Run counts down, calling onTick with the remaining time at every step
// (starting with the full duration). It returns nil when the session
// completes and ctx.Err() if it is abandoned.
func (t *Tomato) Run(ctx context.Context, onTick func(remaining time.Duration)) error {
	remaining := t.duration
	ticker := time.NewTicker(t.step)
	defer ticker.Stop()

	for {
		if onTick != nil {
			onTick(remaining)
		}
		if remaining <= 0 {
			if t.notifier != nil {
				t.notifier.Alert("Done", "Focus session finished!")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			remaining -= time.Second
		}
	}
}
