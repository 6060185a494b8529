/*
accumulator.go - Time-bank accumulation

PURPOSE:
  Folds daily balances and withdrawals into one running balance.

KEY INSIGHT:
  The balance is never stored. Every call recomputes it from the full
  current snapshot, so an edited or deleted punch changes the total on the
  next recompute without any separate decrement path.

SETTLEMENT:
  Workdays and withdrawals dated strictly before the settlement date are
  considered settled and never affect the total. Dates are compared as
  calendar dates.

  total = sum(counted daily balances) + sum(withdrawal minutes)
*/
package ledger

import "time"

// Accumulate sums counted workday balances and withdrawals on or after the
// settlement date. Identical inputs always produce identical output.
func Accumulate(workdays []DailySummary, withdrawals []WithdrawalEvent, settlementDate time.Time) TimeBankBalance {
	var b TimeBankBalance

	for _, wd := range workdays {
		if !wd.Counted() || !OnOrAfterDate(wd.Date, settlementDate) {
			b.SkippedWorkdays++
			continue
		}
		b.WorkdayMinutes += *wd.DailyBalance
		b.CountedWorkdays++
	}

	for _, w := range withdrawals {
		if !OnOrAfterDate(w.Date, settlementDate) {
			continue
		}
		b.WithdrawalMinutes += w.Minutes
	}

	b.TotalMinutes = b.WorkdayMinutes + b.WithdrawalMinutes
	return b
}
