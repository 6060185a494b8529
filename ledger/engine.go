package ledger

import "time"

// =============================================================================
// ENGINE - Grouper -> Summary -> Accumulator
// =============================================================================

// Engine runs the full ledger pipeline over one user's snapshot.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	// Location is the calendar used for workday keys. Nil uses each
	// timestamp's own zone.
	Location *time.Location
}

// Report is the result of one computation.
type Report struct {
	Settings  UserSettings
	Summaries []DailySummary // ascending by workday
	Balance   TimeBankBalance
}

// Incomplete returns the workdays flagged as incomplete, for display.
func (r Report) Incomplete() []DailySummary {
	var out []DailySummary
	for _, s := range r.Summaries {
		if !s.IsComplete {
			out = append(out, s)
		}
	}
	return out
}

// Compute groups, summarizes and accumulates. A nil settings pointer means
// the settings provider has not resolved yet and yields ErrMissingSettings.
func (e Engine) Compute(events []PunchEvent, withdrawals []WithdrawalEvent, settings *UserSettings) (Report, error) {
	if settings == nil {
		return Report{}, ErrMissingSettings
	}
	if err := settings.Validate(); err != nil {
		return Report{}, err
	}

	summaries, err := e.Summaries(events, *settings)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Settings:  *settings,
		Summaries: summaries,
		Balance:   Accumulate(summaries, withdrawals, settings.SettlementDate),
	}, nil
}

// Summaries groups events into workdays and summarizes each of them with the
// strategy and incomplete-day policy selected in settings.
func (e Engine) Summaries(events []PunchEvent, settings UserSettings) ([]DailySummary, error) {
	strategy, err := StrategyFor(settings.SummaryStrategy)
	if err != nil {
		return nil, err
	}
	groups, err := Group(events, settings.NightCutoffHour, e.Location)
	if err != nil {
		return nil, err
	}

	summaries := make([]DailySummary, 0, len(groups))
	for _, key := range SortedKeys(groups) {
		date, err := key.Date(e.dateLocation(groups[key]))
		if err != nil {
			return nil, &InvalidEventError{Reason: "bad workday key " + string(key)}
		}
		s := strategy.Summarize(groups[key], settings.DailyStandardMinutes)
		s = settings.IncompleteDayPolicy.Apply(s, settings.DailyStandardMinutes)
		s.Key = key
		s.Date = date
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (e Engine) dateLocation(events []PunchEvent) *time.Location {
	if e.Location != nil {
		return e.Location
	}
	if len(events) > 0 {
		return events[0].Timestamp.Location()
	}
	return time.UTC
}
