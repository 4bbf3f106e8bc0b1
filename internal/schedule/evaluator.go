package schedule

import (
	"time"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// GracePeriod is how long before a window's start its item is already locked.
const GracePeriod = 30 * time.Minute

// window is a parsed item window as offsets from midnight.
type window struct {
	start time.Duration
	end   time.Duration
}

func parseWindow(item domain.SupervisionItem) (window, bool) {
	start, err := ParseClock(item.Start)
	if err != nil {
		return window{}, false
	}
	end, err := ParseClock(item.End)
	if err != nil {
		return window{}, false
	}
	if !start.Before(end) {
		return window{}, false
	}
	return window{start: start.Offset(), end: end.Offset()}, true
}

// IsItemRestricted reports whether item is locked against edits at now:
// active and within [start-GracePeriod, end], both ends inclusive.
// The grace start never wraps past midnight; it is clamped to 00:00.
func IsItemRestricted(item domain.SupervisionItem, now time.Time) bool {
	if !item.Active {
		return false
	}
	w, ok := parseWindow(item)
	if !ok {
		return false
	}
	t := sinceMidnight(now)
	return t >= w.start-GracePeriod && t <= w.end
}

// IsRestricted reports whether any active item is restricted at now.
func IsRestricted(items []domain.SupervisionItem, now time.Time) bool {
	for _, it := range items {
		if IsItemRestricted(it, now) {
			return true
		}
	}
	return false
}

// InWindow reports whether item is active and now lies in the strict
// window [start, end], both ends inclusive, without grace.
func InWindow(item domain.SupervisionItem, now time.Time) bool {
	if !item.Active {
		return false
	}
	return Contains(item, now)
}

// Contains reports whether now lies in the item's strict window,
// regardless of whether the item is active.
func Contains(item domain.SupervisionItem, now time.Time) bool {
	w, ok := parseWindow(item)
	if !ok {
		return false
	}
	t := sinceMidnight(now)
	return t >= w.start && t <= w.end
}

// RestrictedUntil returns when the latest restriction covering now ends,
// or the zero time if nothing is restricted.
func RestrictedUntil(items []domain.SupervisionItem, now time.Time) time.Time {
	var until time.Time
	for _, it := range items {
		if !IsItemRestricted(it, now) {
			continue
		}
		end, _ := ParseClock(it.End)
		if t := end.On(now); t.After(until) {
			until = t
		}
	}
	return until
}
