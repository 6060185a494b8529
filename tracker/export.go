package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// =============================================================================
// EXPORT - Summaries and total over a date range
// =============================================================================

// ExportSource is the read side the exporter needs.
type ExportSource interface {
	ledger.EventStore
	ledger.WithdrawalStore
	ledger.SettingsProvider
}

// Export is the payload handed to the export consumer. Formatting it into a
// file is up to the consumer.
type Export struct {
	UserID         ledger.UserID
	From           ledger.WorkdayKey
	To             ledger.WorkdayKey
	DailySummaries []ledger.DailySummary
	Withdrawals    []ledger.WithdrawalEvent
	TotalMinutes   int
}

// TotalHours is TotalMinutes as exact hours, rounded to two places.
func (e Export) TotalHours() decimal.Decimal {
	return MinutesToHours(e.TotalMinutes)
}

// MinutesToHours converts minutes to hours rounded to two decimal places.
func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

type Exporter struct {
	Source ExportSource
	Engine ledger.Engine
}

// Export returns the workdays with keys in [from, to] and the total of those
// workdays plus the withdrawals dated in the same range. The settlement
// boundary still applies.
func (x *Exporter) Export(ctx context.Context, userID ledger.UserID, from, to time.Time) (Export, error) {
	loc := x.Engine.Location
	fromKey, toKey := ledger.KeyOf(from, loc), ledger.KeyOf(to, loc)
	if fromKey > toKey {
		return Export{}, fmt.Errorf("%w: %s is after %s", ledger.ErrInvalidRange, fromKey, toKey)
	}

	settings, err := x.Source.Get(ctx, userID)
	if err != nil {
		return Export{}, fmt.Errorf("%w: %w", ledger.ErrMissingSettings, ledger.WrapGateway("get settings", err))
	}

	// Punches after midnight on the day after `to` can still belong to `to`.
	first := ledger.DateOnly(from, loc)
	last := ledger.DateOnly(to, loc).AddDate(0, 0, 2).Add(-time.Nanosecond)
	events, err := x.Source.Query(ctx, userID, &ledger.DateRange{From: first, To: last})
	if err != nil {
		return Export{}, ledger.WrapGateway("query punches", err)
	}
	withdrawals, err := x.Source.Withdrawals(ctx, userID)
	if err != nil {
		return Export{}, ledger.WrapGateway("query withdrawals", err)
	}

	if err := settings.Validate(); err != nil {
		return Export{}, err
	}
	summaries, err := x.Engine.Summaries(events, settings)
	if err != nil {
		return Export{}, err
	}

	out := Export{UserID: userID, From: fromKey, To: toKey}
	for _, s := range summaries {
		if s.Key >= fromKey && s.Key <= toKey {
			out.DailySummaries = append(out.DailySummaries, s)
		}
	}
	for _, w := range withdrawals {
		if k := ledger.KeyOf(w.Date, loc); k >= fromKey && k <= toKey {
			out.Withdrawals = append(out.Withdrawals, w)
		}
	}

	out.TotalMinutes = ledger.Accumulate(out.DailySummaries, out.Withdrawals, settings.SettlementDate).TotalMinutes
	return out, nil
}
