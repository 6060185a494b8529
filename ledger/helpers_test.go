package ledger_test

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var saoPaulo = mustLoad("America/Sao_Paulo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, -3*60*60)
	}
	return loc
}

// at builds a timestamp in São Paulo from "2006-01-02 15:04".
func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, saoPaulo)
	if err != nil {
		panic(err)
	}
	return t
}

// day builds punches for one date from "15:04" clock readings.
func day(date string, clocks ...string) []ledger.PunchEvent {
	events := make([]ledger.PunchEvent, len(clocks))
	for i, c := range clocks {
		events[i] = punch(fmt.Sprintf("%s-%d", date, i), date+" "+c)
	}
	return events
}

func punch(id, ts string) ledger.PunchEvent {
	return ledger.PunchEvent{
		ID:        ledger.EventID(id),
		UserID:    "user-1",
		Timestamp: at(ts),
		Origin:    ledger.OriginManual,
	}
}

func defaultSettings() ledger.UserSettings {
	return ledger.DefaultSettings(at("2024-01-01 00:00"))
}

func summaryOn(date string, clocks ...string) ledger.DailySummary {
	s := ledger.Summarize(day(date, clocks...), 480)
	s.Key = ledger.WorkdayKey(date)
	s.Date = at(date + " 00:00")
	return s
}

func withdrawal(id, date string, minutes int) ledger.WithdrawalEvent {
	return ledger.WithdrawalEvent{
		ID:      ledger.WithdrawalID(id),
		UserID:  "user-1",
		Date:    at(date + " 00:00"),
		Minutes: minutes,
	}
}
