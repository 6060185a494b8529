/*
errors.go - Centralized error types for the time-bank engine

ERROR CATEGORIES:
  1. Validation errors - duplicate punch, invalid withdrawal, bad settings
  2. Precondition errors - settings not yet loaded
  3. Gateway errors - event store / settings provider failures

PROPAGATION:
  Validation errors are turned into user-facing warnings by the caller.
  Gateway errors are wrapped with ErrNetworkFailure and surfaced, never
  retried automatically.
*/
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingSettings is returned when a computation is attempted before
	// the user's settings have been resolved. Computation is deferred, never
	// run against guessed defaults.
	ErrMissingSettings = errors.New("settings not loaded")

	// ErrIncompleteWorkday marks a workday without the required punches.
	// Non-fatal: the day is flagged for display and kept out of the balance.
	ErrIncompleteWorkday = errors.New("incomplete workday")

	// ErrInvalidWithdrawal is returned for a non-positive amount or a future date.
	ErrInvalidWithdrawal = errors.New("invalid withdrawal")

	// ErrDuplicateEvent is returned when a candidate punch matches an existing one.
	ErrDuplicateEvent = errors.New("duplicate punch event")

	// ErrNetworkFailure wraps any failure talking to an external collaborator.
	ErrNetworkFailure = errors.New("network failure")

	// ErrInvalidSettings is returned when settings are out of range.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrInvalidEvent is returned for punches that cannot be placed in a workday.
	ErrInvalidEvent = errors.New("invalid punch event")

	// ErrEventNotFound is returned when a referenced punch or withdrawal doesn't exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidTransition is returned when a punch draft is moved out of order.
	ErrInvalidTransition = errors.New("invalid punch lifecycle transition")

	// ErrAlreadyCorrected is returned when a punch is corrected a second time.
	ErrAlreadyCorrected = errors.New("punch already corrected")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateEventError reports which existing punch a candidate collides with.
type DuplicateEventError struct {
	UserID     UserID
	At         time.Time
	ExistingID EventID
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("punch already registered at %s (event: %s)",
		e.At.Format("02/01/2006 15:04"), e.ExistingID)
}

func (e *DuplicateEventError) Unwrap() error { return ErrDuplicateEvent }

// InvalidWithdrawalError explains why a withdrawal was rejected.
type InvalidWithdrawalError struct {
	Minutes int
	Date    time.Time
	Reason  string // "non_positive_amount", "future_date"
}

func (e *InvalidWithdrawalError) Error() string {
	return fmt.Sprintf("invalid withdrawal of %d minutes on %s: %s",
		e.Minutes, e.Date.Format(time.DateOnly), e.Reason)
}

func (e *InvalidWithdrawalError) Unwrap() error { return ErrInvalidWithdrawal }

// SettingsValidationError names the offending settings field.
type SettingsValidationError struct {
	Field  string
	Reason string
}

func (e *SettingsValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s %s", e.Field, e.Reason)
}

func (e *SettingsValidationError) Unwrap() error { return ErrInvalidSettings }

// IncompleteWorkdayError flags a workday that cannot be summarized.
type IncompleteWorkdayError struct {
	Key     WorkdayKey
	Punches int
}

func (e *IncompleteWorkdayError) Error() string {
	return fmt.Sprintf("incomplete workday %s: %d punches", e.Key, e.Punches)
}

func (e *IncompleteWorkdayError) Unwrap() error { return ErrIncompleteWorkday }

// InvalidEventError points at the punch that could not be processed.
type InvalidEventError struct {
	EventID EventID
	Reason  string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid punch %s: %s", e.EventID, e.Reason)
}

func (e *InvalidEventError) Unwrap() error { return ErrInvalidEvent }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// WrapGateway wraps an external collaborator failure so callers can match
// ErrNetworkFailure while keeping the original cause.
func WrapGateway(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNetworkFailure) || IsNotFound(err) || IsClientError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrNetworkFailure, op, err)
}

// IsClientError returns true if the error is due to invalid user input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrInvalidWithdrawal) ||
		errors.Is(err, ErrInvalidSettings) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyCorrected) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsNetworkFailure returns true for gateway failures.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
