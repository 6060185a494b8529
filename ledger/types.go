/*
Package ledger provides the time-bank engine.

PURPOSE:
  Turns a user's raw punch events into workdays, computes the worked time
  of each workday under a break policy, and folds daily balances together
  with manual withdrawals into a single running time-bank balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - PunchEvent: A single timestamped attendance event
  - WithdrawalEvent: A manual balance adjustment not tied to punches
  - DailySummary: Derived figures for one workday
  - TimeBankBalance: Derived running balance, never stored

DESIGN PRINCIPLES:
  1. Derived, not stored: balances are recomputed from the full snapshot
  2. Pure: grouping, summarizing and accumulating have no side effects
  3. Explicit user: every service call takes a UserID, nothing is ambient

USAGE:
  engine := ledger.Engine{Location: loc}
  report, err := engine.Compute(events, withdrawals, &settings)
  fmt.Println(report.Balance.TotalMinutes)

SEE ALSO:
  - grouper.go: Night-cutoff workday grouping
  - summary.go: Daily summary strategies
  - accumulator.go: Time-bank accumulation
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EventID string
type WithdrawalID string

// =============================================================================
// PUNCH EVENT - One timestamped attendance event
// =============================================================================

// Origin records how a punch reached the system.
type Origin string

const (
	OriginManual Origin = "manual"
	OriginPhoto  Origin = "photo"
	OriginApp    Origin = "app"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginManual, OriginPhoto, OriginApp:
		return true
	}
	return false
}

// PunchEvent is immutable after ingestion, except for the correction fields
// (IsEdited, Justification, OriginalPayload) which are set once.
type PunchEvent struct {
	ID            EventID
	UserID        UserID
	Timestamp     time.Time
	Origin        Origin
	Justification string
	IsEdited      bool

	// OriginalPayload holds the pre-edit values once the event is corrected.
	OriginalPayload *OriginalPayload

	// ImageRef is an opaque reference to the receipt photo, if any.
	ImageRef string

	// ExtractedName is the name read from a receipt photo, if any.
	ExtractedName string

	CreatedAt time.Time
}

// OriginalPayload is the snapshot of a punch taken before its first correction.
type OriginalPayload struct {
	Timestamp     time.Time
	Justification string
}

// =============================================================================
// WITHDRAWAL EVENT - Manual balance adjustment ("saque")
// =============================================================================

// WithdrawalEvent adjusts the balance by a signed number of minutes.
// Negative minutes reduce the balance.
type WithdrawalEvent struct {
	ID            WithdrawalID
	UserID        UserID
	Date          time.Time // calendar date, time of day is ignored
	Minutes       int
	Justification string
	CreatedAt     time.Time
}

// =============================================================================
// DAILY SUMMARY - Derived figures for a single workday
// =============================================================================

type BreakStatus string

const (
	BreakNormal BreakStatus = "normal"
	BreakShort  BreakStatus = "short"
	BreakLong   BreakStatus = "long"
	BreakNA     BreakStatus = "n/a"
)

// DailySummary is the computed view of one workday.
//
// DailyBalance is nil when the workday does not contribute to the balance.
// Under the default incomplete-day policy that is exactly the incomplete days.
type DailySummary struct {
	Key           WorkdayKey
	Date          time.Time
	Events        []PunchEvent
	WorkedMinutes int
	BreakMinutes  int
	BreakStatus   BreakStatus
	IsComplete    bool
	DailyBalance  *int
}

// Counted reports whether the summary contributes to the time bank.
func (s DailySummary) Counted() bool { return s.DailyBalance != nil }

// Err returns an *IncompleteWorkdayError for a day without the required
// punches, nil otherwise. The error is a warning: the summary stays usable.
func (s DailySummary) Err() error {
	if s.IsComplete {
		return nil
	}
	return &IncompleteWorkdayError{Key: s.Key, Punches: len(s.Events)}
}

// =============================================================================
// TIME BANK BALANCE - Always derived
// =============================================================================

// TimeBankBalance is recomputed from the full snapshot on every call.
type TimeBankBalance struct {
	TotalMinutes      int
	WorkdayMinutes    int
	WithdrawalMinutes int
	CountedWorkdays   int
	SkippedWorkdays   int // incomplete or before settlement
}
