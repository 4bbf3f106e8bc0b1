package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an item or blacklist entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWindowInProgress is returned when a new or edited item's window
	// already contains the current time and the caller has not confirmed.
	ErrWindowInProgress = errors.New("supervision window is already in progress")

	// ErrAlreadyRunning is returned by the single-instance guard.
	ErrAlreadyRunning = errors.New("another supervisor instance is already running")
)

// ValidationError reports bad user input. Nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RestrictionError is a designed refusal: the operation would weaken an
// active (or imminent) supervision window.
type RestrictionError struct {
	Op      string    // e.g. "delete item", "quit"
	Subject string    // item name, or empty for global operations
	Until   time.Time // when the restriction ends (zero if unknown)
}

func (e *RestrictionError) Error() string {
	msg := "cannot " + e.Op
	if e.Subject != "" {
		msg += fmt.Sprintf(" %q", e.Subject)
	}
	msg += ": supervision window is active or starts within the grace period"
	if !e.Until.IsZero() {
		msg += fmt.Sprintf(" (locked until %s)", e.Until.Format("15:04"))
	}
	return msg
}

// IsRestriction reports whether err is (or wraps) a RestrictionError.
func IsRestriction(err error) bool {
	var re *RestrictionError
	return errors.As(err, &re)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
