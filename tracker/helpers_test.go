package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}()

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, saoPaulo)
	if err != nil {
		panic(err)
	}
	return t
}

// newStore returns a memory store whose default settings are anchored at
// 2024-01-01.
func newStore() *store.Memory {
	m := store.NewMemory()
	m.Now = func() time.Time { return at("2024-01-01 00:00") }
	return m
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func recordDay(ctx context.Context, m *store.Memory, userID ledger.UserID, date string, clocks ...string) {
	for _, c := range clocks {
		e := ledger.PunchEvent{
			ID:        ledger.EventID(fmt.Sprintf("%s-%s-%s", userID, date, c)),
			UserID:    userID,
			Timestamp: at(date + " " + c),
			Origin:    ledger.OriginManual,
		}
		if err := m.Append(ctx, e); err != nil {
			panic(err)
		}
	}
}

var errUnreachable = errors.New("connection refused")

// flakyStore fails selected reads on demand.
type flakyStore struct {
	*store.Memory

	mu           sync.Mutex
	failSettings bool
	failQuery    bool
}

func (f *flakyStore) setFailures(settings, query bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSettings, f.failQuery = settings, query
}

func (f *flakyStore) Get(ctx context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	f.mu.Lock()
	fail := f.failSettings
	f.mu.Unlock()
	if fail {
		return ledger.UserSettings{}, errUnreachable
	}
	return f.Memory.Get(ctx, userID)
}

func (f *flakyStore) Query(ctx context.Context, userID ledger.UserID, r *ledger.DateRange) ([]ledger.PunchEvent, error) {
	f.mu.Lock()
	fail := f.failQuery
	f.mu.Unlock()
	if fail {
		return nil, errUnreachable
	}
	return f.Memory.Query(ctx, userID, r)
}
