/*
summary.go - Daily summary calculation

PURPOSE:
  Computes worked minutes, break status and completeness for one workday.

CANONICAL MODEL (threshold):
  Exactly four punches p1..p4:
    worked = (p2 - p1) + (p4 - p3)
    break  = p3 - p2
  Break under 50 minutes is "short" (flagged, no adjustment).
  Break over 65 minutes is "long": the excess over 65 is charged against
  worked time. Anything else is "normal".
  dailyBalance = worked - dailyStandardMinutes

LEGACY MODELS:
  Older screens computed the balance differently. They are kept as named
  strategies, selected per user, and never mixed with the canonical one:
    lunch_deduction: last - first - 60, at least two punches
    paired:          sum of (out - in) pairs, no break adjustment

INCOMPLETE DAYS:
  Under the default policy an incomplete day reports zero worked minutes and
  a nil balance. The "penalize" policy charges the full daily standard instead.

EXAMPLE:
  08:00 12:00 13:10 17:00, standard 480
  break = 70 (long), excess = 5
  worked = 240 + 230 - 5 = 465, balance = -15
*/
package ledger

import "fmt"

const (
	// RequiredDailyPoints is the number of punches of a complete workday.
	RequiredDailyPoints = 4

	ShortBreakThreshold = 50 // minutes, exclusive
	LongBreakThreshold  = 65 // minutes, exclusive

	// LunchDeductionMinutes is the fixed lunch of the lunch_deduction model.
	LunchDeductionMinutes = 60
)

// =============================================================================
// STRATEGIES
// =============================================================================

type StrategyName string

const (
	StrategyThreshold      StrategyName = "threshold"
	StrategyLunchDeduction StrategyName = "lunch_deduction"
	StrategyPaired         StrategyName = "paired"
)

func (n StrategyName) Valid() bool {
	switch n {
	case StrategyThreshold, StrategyLunchDeduction, StrategyPaired:
		return true
	}
	return false
}

// SummaryStrategy computes the summary of one workday's chronologically
// sorted events. Implementations fill every field except Key and Date.
type SummaryStrategy interface {
	Name() StrategyName
	Summarize(dayEvents []PunchEvent, dailyStandardMinutes int) DailySummary
}

// StrategyFor returns the strategy registered under name.
func StrategyFor(name StrategyName) (SummaryStrategy, error) {
	switch name {
	case StrategyThreshold, "":
		return ThresholdStrategy{}, nil
	case StrategyLunchDeduction:
		return LunchDeductionStrategy{}, nil
	case StrategyPaired:
		return PairedStrategy{}, nil
	}
	return nil, &SettingsValidationError{Field: "summary_strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
}

// Summarize applies the canonical threshold model.
func Summarize(dayEvents []PunchEvent, dailyStandardMinutes int) DailySummary {
	return ThresholdStrategy{}.Summarize(dayEvents, dailyStandardMinutes)
}

func incomplete(dayEvents []PunchEvent) DailySummary {
	return DailySummary{
		Events:      dayEvents,
		BreakStatus: BreakNA,
	}
}

func complete(dayEvents []PunchEvent, worked, brk int, status BreakStatus, standard int) DailySummary {
	balance := worked - standard
	return DailySummary{
		Events:        dayEvents,
		WorkedMinutes: worked,
		BreakMinutes:  brk,
		BreakStatus:   status,
		IsComplete:    true,
		DailyBalance:  &balance,
	}
}

// -----------------------------------------------------------------------------
// Threshold (canonical)
// -----------------------------------------------------------------------------

type ThresholdStrategy struct{}

func (ThresholdStrategy) Name() StrategyName { return StrategyThreshold }

func (ThresholdStrategy) Summarize(dayEvents []PunchEvent, dailyStandardMinutes int) DailySummary {
	if len(dayEvents) != RequiredDailyPoints {
		return incomplete(dayEvents)
	}
	p1, p2, p3, p4 := dayEvents[0].Timestamp, dayEvents[1].Timestamp, dayEvents[2].Timestamp, dayEvents[3].Timestamp

	worked := minutesBetween(p1, p2) + minutesBetween(p3, p4)
	brk := minutesBetween(p2, p3)
	status := ClassifyBreak(brk)
	if status == BreakLong {
		worked -= brk - LongBreakThreshold
	}
	return complete(dayEvents, worked, brk, status, dailyStandardMinutes)
}

// ClassifyBreak maps a break duration to its status.
func ClassifyBreak(breakMinutes int) BreakStatus {
	switch {
	case breakMinutes < ShortBreakThreshold:
		return BreakShort
	case breakMinutes > LongBreakThreshold:
		return BreakLong
	default:
		return BreakNormal
	}
}

// -----------------------------------------------------------------------------
// Lunch deduction (legacy)
// -----------------------------------------------------------------------------

type LunchDeductionStrategy struct{}

func (LunchDeductionStrategy) Name() StrategyName { return StrategyLunchDeduction }

// Summarize uses only the first and last punch and deducts a fixed lunch.
func (LunchDeductionStrategy) Summarize(dayEvents []PunchEvent, dailyStandardMinutes int) DailySummary {
	if len(dayEvents) < 2 {
		return incomplete(dayEvents)
	}
	first, last := dayEvents[0].Timestamp, dayEvents[len(dayEvents)-1].Timestamp
	worked := minutesBetween(first, last) - LunchDeductionMinutes
	return complete(dayEvents, worked, LunchDeductionMinutes, BreakNA, dailyStandardMinutes)
}

// -----------------------------------------------------------------------------
// Paired (legacy)
// -----------------------------------------------------------------------------

type PairedStrategy struct{}

func (PairedStrategy) Name() StrategyName { return StrategyPaired }

// Summarize sums in/out pairs without any break adjustment.
func (PairedStrategy) Summarize(dayEvents []PunchEvent, dailyStandardMinutes int) DailySummary {
	if len(dayEvents) < 2 || len(dayEvents)%2 != 0 {
		return incomplete(dayEvents)
	}
	worked, brk := 0, 0
	for i := 0; i < len(dayEvents); i += 2 {
		worked += minutesBetween(dayEvents[i].Timestamp, dayEvents[i+1].Timestamp)
		if i > 0 {
			brk += minutesBetween(dayEvents[i-1].Timestamp, dayEvents[i].Timestamp)
		}
	}
	return complete(dayEvents, worked, brk, BreakNA, dailyStandardMinutes)
}

// =============================================================================
// INCOMPLETE DAY POLICY
// =============================================================================

type IncompleteDayPolicy string

const (
	IncompleteExclude  IncompleteDayPolicy = "exclude"
	IncompletePenalize IncompleteDayPolicy = "penalize"
)

func (p IncompleteDayPolicy) Valid() bool {
	return p == IncompleteExclude || p == IncompletePenalize
}

// Apply charges the full daily standard to an incomplete day under the
// penalize policy. Worked minutes stay zero for display.
func (p IncompleteDayPolicy) Apply(s DailySummary, dailyStandardMinutes int) DailySummary {
	if s.IsComplete || p != IncompletePenalize || len(s.Events) == 0 {
		return s
	}
	penalty := -dailyStandardMinutes
	s.DailyBalance = &penalty
	return s
}
