/*
store.go - Gateway interfaces to the external collaborators

PURPOSE:
  The engine never talks to storage directly. Services read a snapshot
  through these interfaces, hand it to the pure engine, and surface any
  gateway failure to the caller.

KEY INTERFACES:
  EventStore:       Punch persistence (append, query, update, delete)
  WithdrawalStore:  Withdrawal persistence
  SettingsProvider: Per-user settings with defaults on first access
  Subscriber:       Change notifications, one callback per user

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/mongo/mongo.go:   MongoDB

SEE ALSO:
  - subscription.go: Broadcaster shared by the implementations
  - tracker/monitor.go: Recompute on every change
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE
// =============================================================================

// DateRange bounds a query by timestamp, inclusive on both ends.
// A zero From or To leaves that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Includes reports whether t falls in the range.
func (r *DateRange) Includes(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// EventStore persists punch events.
type EventStore interface {
	// Append persists a new punch.
	Append(ctx context.Context, event PunchEvent) error

	// Query returns a user's punches ordered by timestamp. A nil range
	// returns everything.
	Query(ctx context.Context, userID UserID, dateRange *DateRange) ([]PunchEvent, error)

	// Event returns one punch or ErrEventNotFound.
	Event(ctx context.Context, id EventID) (PunchEvent, error)

	// Update replaces a punch. Used only for the one-time correction.
	Update(ctx context.Context, event PunchEvent) error

	// Delete removes a punch. Returns ErrEventNotFound if absent.
	Delete(ctx context.Context, id EventID) error

	// BatchDelete removes several punches atomically.
	BatchDelete(ctx context.Context, ids []EventID) error
}

// =============================================================================
// WITHDRAWAL STORE
// =============================================================================

type WithdrawalStore interface {
	AppendWithdrawal(ctx context.Context, w WithdrawalEvent) error
	Withdrawals(ctx context.Context, userID UserID) ([]WithdrawalEvent, error)
	DeleteWithdrawal(ctx context.Context, id WithdrawalID) error
}

// =============================================================================
// SETTINGS PROVIDER
// =============================================================================

// SettingsProvider stores one settings record per user.
type SettingsProvider interface {
	// Get returns the user's settings, creating DefaultSettings on first access.
	Get(ctx context.Context, userID UserID) (UserSettings, error)

	// Set merges patch into the stored settings and returns the result.
	Set(ctx context.Context, userID UserID, patch SettingsPatch) (UserSettings, error)

	// Users lists every user with stored settings.
	Users(ctx context.Context) ([]UserID, error)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscriber delivers change notifications for one user's data.
type Subscriber interface {
	Subscribe(userID UserID, fn func(Change)) (unsubscribe func())
}

// Gateway bundles everything the services need from storage.
type Gateway interface {
	EventStore
	WithdrawalStore
	SettingsProvider
	Subscriber
}
