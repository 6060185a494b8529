package ledger

import "time"

// =============================================================================
// PERIOD - A closed range of calendar dates
// =============================================================================

// Period is an inclusive range of calendar dates.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if the date of t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return OnOrAfterDate(t, p.Start) && OnOrAfterDate(p.End, t)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.DateOnly) + ", " + p.End.Format(time.DateOnly) + "]"
}

// =============================================================================
// SETTLEMENT POLICY - Cadence of balance resets
// =============================================================================

type SettlementPolicy string

const (
	SettlementAnnual     SettlementPolicy = "annual"
	SettlementSemiannual SettlementPolicy = "semiannual"
)

func (p SettlementPolicy) Valid() bool {
	return p == SettlementAnnual || p == SettlementSemiannual
}

// Months is the length of one settlement window.
func (p SettlementPolicy) Months() int {
	if p == SettlementSemiannual {
		return 6
	}
	return 12
}

// PeriodFor returns the settlement window containing date. Windows are
// anchored at the settlement date and repeat every Months() months in
// both directions.
func (p SettlementPolicy) PeriodFor(anchor, date time.Time) Period {
	anchorDay := DateOnly(anchor, nil)
	day := DateOnly(date, anchor.Location())
	months := p.Months()

	elapsed := (day.Year()-anchorDay.Year())*12 + int(day.Month()-anchorDay.Month())
	k := floorDiv(elapsed, months)
	start := anchorDay.AddDate(0, k*months, 0)

	// Month arithmetic can overshoot when the anchor day is late in the month.
	if day.Before(start) {
		k--
		start = anchorDay.AddDate(0, k*months, 0)
	}
	next := anchorDay.AddDate(0, (k+1)*months, 0)
	if !day.Before(next) {
		k++
		start = next
		next = anchorDay.AddDate(0, (k+1)*months, 0)
	}
	return Period{Start: start, End: next.AddDate(0, 0, -1)}
}

// NextSettlement returns the first window boundary strictly after asOf.
func (p SettlementPolicy) NextSettlement(anchor, asOf time.Time) time.Time {
	return p.PeriodFor(anchor, asOf).End.AddDate(0, 0, 1)
}

// LatestBoundary returns the start of the window containing asOf. When asOf
// is before the anchor the anchor itself is returned, so a settlement date
// is never moved backwards.
func (p SettlementPolicy) LatestBoundary(anchor, asOf time.Time) time.Time {
	start := p.PeriodFor(anchor, asOf).Start
	if start.Before(DateOnly(anchor, nil)) {
		return anchor
	}
	return start
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
