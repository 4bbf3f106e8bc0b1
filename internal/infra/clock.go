package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// SystemClock implements domain.Clock with the local wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

var _ domain.Clock = SystemClock{}
