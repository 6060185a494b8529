package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

func TestAccumulate_SumsCompleteDaysAndWithdrawals(t *testing.T) {
	workdays := []ledger.DailySummary{
		summaryOn("2024-05-10", "08:00", "12:00", "13:10", "17:00"), // -15
		summaryOn("2024-05-13", "08:00", "12:00", "12:40", "17:00"), // +20
	}
	withdrawals := []ledger.WithdrawalEvent{withdrawal("w1", "2024-05-14", -30)}

	b := ledger.Accumulate(workdays, withdrawals, at("2024-01-01 00:00"))

	assert.Equal(t, 5, b.WorkdayMinutes)
	assert.Equal(t, -30, b.WithdrawalMinutes)
	assert.Equal(t, -25, b.TotalMinutes)
	assert.Equal(t, 2, b.CountedWorkdays)
}

func TestAccumulate_WithdrawalReducesTotalExactly(t *testing.T) {
	// GIVEN: a day with a normal balance
	// WHEN: a 60 minute withdrawal is taken inside the settlement window
	// THEN: the total drops by exactly 60, whatever the punches that day

	workdays := []ledger.DailySummary{summaryOn("2024-05-10", "08:00", "12:00", "12:40", "17:00")}
	before := ledger.Accumulate(workdays, nil, at("2024-01-01 00:00"))

	after := ledger.Accumulate(workdays,
		[]ledger.WithdrawalEvent{withdrawal("w1", "2024-05-10", -60)},
		at("2024-01-01 00:00"))

	assert.Equal(t, before.TotalMinutes-60, after.TotalMinutes)
}

func TestAccumulate_IncompleteDayExcludedNotPenalized(t *testing.T) {
	// GIVEN: one complete day and one day with only two punches
	// THEN: the two-punch day is skipped, not counted as -480

	workdays := []ledger.DailySummary{
		summaryOn("2024-05-10", "08:00", "12:00", "13:00", "17:00"), // 0
		summaryOn("2024-05-13", "08:00", "12:00"),
	}

	b := ledger.Accumulate(workdays, nil, at("2024-01-01 00:00"))

	assert.Equal(t, 0, b.TotalMinutes)
	assert.Equal(t, 1, b.CountedWorkdays)
	assert.Equal(t, 1, b.SkippedWorkdays)
	assert.Equal(t, 0, workdays[1].WorkedMinutes)
}

func TestAccumulate_SettlementExcludesEarlierDates(t *testing.T) {
	workdays := []ledger.DailySummary{
		summaryOn("2024-05-09", "08:00", "12:00", "12:40", "17:00"), // +20, settled
		summaryOn("2024-05-10", "08:00", "12:00", "12:40", "17:00"), // +20
	}
	withdrawals := []ledger.WithdrawalEvent{
		withdrawal("old", "2024-05-09", -100),
		withdrawal("new", "2024-05-10", -5),
	}

	// Settlement at 14:00 on May 10 still includes all of May 10.
	b := ledger.Accumulate(workdays, withdrawals, at("2024-05-10 14:00"))

	assert.Equal(t, 20, b.WorkdayMinutes)
	assert.Equal(t, -5, b.WithdrawalMinutes)
	assert.Equal(t, 15, b.TotalMinutes)
	assert.Equal(t, 1, b.SkippedWorkdays)
}

func TestAccumulate_SettledDataNeverAffectsTotal(t *testing.T) {
	current := []ledger.DailySummary{summaryOn("2024-06-03", "08:00", "12:00", "13:00", "17:30")}
	settlement := at("2024-06-01 00:00")
	base := ledger.Accumulate(current, nil, settlement)

	settled := append([]ledger.DailySummary{
		summaryOn("2024-05-20", "08:00", "12:00", "12:10", "20:00"),
		summaryOn("2024-05-31", "09:00", "10:00", "11:00", "12:00"),
	}, current...)
	withdrawals := []ledger.WithdrawalEvent{withdrawal("w", "2024-05-31", -999)}

	got := ledger.Accumulate(settled, withdrawals, settlement)

	assert.Equal(t, base.TotalMinutes, got.TotalMinutes)
}

func TestAccumulate_Idempotent(t *testing.T) {
	workdays := []ledger.DailySummary{
		summaryOn("2024-05-10", "08:00", "12:00", "13:10", "17:00"),
		summaryOn("2024-05-13", "08:00", "12:00"),
	}
	withdrawals := []ledger.WithdrawalEvent{withdrawal("w1", "2024-05-14", -60)}
	settlement := at("2024-01-01 00:00")

	first := ledger.Accumulate(workdays, withdrawals, settlement)
	second := ledger.Accumulate(workdays, withdrawals, settlement)

	assert.Equal(t, first, second)
}

func TestAccumulate_PenalizedIncompleteDayIsCounted(t *testing.T) {
	s := ledger.IncompletePenalize.Apply(summaryOn("2024-05-13", "08:00", "12:00"), 480)

	b := ledger.Accumulate([]ledger.DailySummary{s}, nil, at("2024-01-01 00:00"))

	assert.Equal(t, -480, b.TotalMinutes)
	assert.Equal(t, 1, b.CountedWorkdays)
}
