package ledger

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// WORKDAY GROUPER - Partitions punches into workdays
// =============================================================================

const (
	MinNightCutoffHour = 0
	MaxNightCutoffHour = 6
)

// Group partitions events into workdays using the night-cutoff rule.
//
// A punch whose local hour is before nightCutoffHour is attributed to the
// previous calendar date, so an overnight shift stays in one workday.
// nightCutoffHour == 0 disables the shift. Events need not be sorted; each
// bucket is returned in ascending timestamp order. No event is dropped: an
// event without a timestamp is an error, not a silent skip.
//
// loc selects the local calendar. When nil, each timestamp's own zone is used.
func Group(events []PunchEvent, nightCutoffHour int, loc *time.Location) (map[WorkdayKey][]PunchEvent, error) {
	if nightCutoffHour < MinNightCutoffHour || nightCutoffHour > MaxNightCutoffHour {
		return nil, &SettingsValidationError{
			Field:  "night_cutoff_hour",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinNightCutoffHour, MaxNightCutoffHour, nightCutoffHour),
		}
	}

	groups := make(map[WorkdayKey][]PunchEvent)
	for _, e := range events {
		if e.Timestamp.IsZero() {
			return nil, &InvalidEventError{EventID: e.ID, Reason: "missing timestamp"}
		}
		key := KeyFor(e.Timestamp, nightCutoffHour, loc)
		groups[key] = append(groups[key], e)
	}

	for _, bucket := range groups {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Timestamp.Before(bucket[j].Timestamp)
		})
	}
	return groups, nil
}
