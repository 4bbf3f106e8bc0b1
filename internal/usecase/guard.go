package usecase

import (
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/schedule"
)

// Guard is the edit lock. Every mutation of items, blacklists, or the
// process lifetime must pass it first.
type Guard struct {
	clock domain.Clock
}

// NewGuard creates an edit lock guard.
func NewGuard(clock domain.Clock) *Guard {
	return &Guard{clock: clock}
}

// GuardItemMutation denies toggling, editing or deleting item (or its own
// blacklist) while the item is restricted.
func (g *Guard) GuardItemMutation(op string, item domain.SupervisionItem) error {
	now := g.clock.Now()
	if !schedule.IsItemRestricted(item, now) {
		return nil
	}
	return &domain.RestrictionError{
		Op:      op,
		Subject: item.Name,
		Until:   schedule.RestrictedUntil([]domain.SupervisionItem{item}, now),
	}
}

// GuardGlobalMutation denies changes to the global blacklist while any item is restricted.
func (g *Guard) GuardGlobalMutation(op string, items []domain.SupervisionItem) error {
	return g.guardAny(op, items)
}

// GuardQuit denies exiting the supervisor while any item is restricted.
func (g *Guard) GuardQuit(items []domain.SupervisionItem) error {
	return g.guardAny("quit", items)
}

func (g *Guard) guardAny(op string, items []domain.SupervisionItem) error {
	now := g.clock.Now()
	if !schedule.IsRestricted(items, now) {
		return nil
	}
	return &domain.RestrictionError{Op: op, Until: schedule.RestrictedUntil(items, now)}
}

// fixedClock is a Clock frozen at a single instant.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) domain.Clock {
	return fixedClock{t: t}
}
