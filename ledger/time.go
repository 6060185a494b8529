package ledger

import (
	"sort"
	"time"
)

// =============================================================================
// WORKDAY KEY - Calendar date a punch is attributed to
// =============================================================================

// KeyLayout is the layout of a WorkdayKey.
const KeyLayout = time.DateOnly

// WorkdayKey is the calendar date ("2006-01-02") of a workday after the
// night-cutoff adjustment.
type WorkdayKey string

// KeyFor returns the workday a timestamp belongs to. Punches whose local hour
// is before nightCutoffHour belong to the previous calendar date.
func KeyFor(ts time.Time, nightCutoffHour int, loc *time.Location) WorkdayKey {
	local := inLocation(ts, loc)
	day := startOfDay(local)
	if local.Hour() < nightCutoffHour {
		day = day.AddDate(0, 0, -1)
	}
	return WorkdayKey(day.Format(KeyLayout))
}

// KeyOf returns the key of the calendar date of t, without any cutoff shift.
func KeyOf(t time.Time, loc *time.Location) WorkdayKey {
	return WorkdayKey(inLocation(t, loc).Format(KeyLayout))
}

// Date returns midnight of the key's date in loc.
func (k WorkdayKey) Date(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(KeyLayout, string(k), loc)
}

func (k WorkdayKey) String() string { return string(k) }

// SortedKeys returns the keys of a grouping in ascending date order.
// The key layout sorts lexically in date order.
func SortedKeys(groups map[WorkdayKey][]PunchEvent) []WorkdayKey {
	keys := make([]WorkdayKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func inLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateOnly truncates t to its calendar date in loc (t's own zone when loc is nil).
func DateOnly(t time.Time, loc *time.Location) time.Time {
	return startOfDay(inLocation(t, loc))
}

// OnOrAfterDate reports whether the calendar date of d is not strictly before
// the calendar date of boundary. Both dates are read in d's location.
func OnOrAfterDate(d, boundary time.Time) bool {
	if boundary.IsZero() {
		return true
	}
	day := startOfDay(d)
	limit := startOfDay(boundary.In(d.Location()))
	return !day.Before(limit)
}

// minutesBetween truncates toward zero, so every segment loses its leftover
// seconds independently. Callers pass whole-minute timestamps: the recorder
// truncates punches to the minute before storing them.
func minutesBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}
