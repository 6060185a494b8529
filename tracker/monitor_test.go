package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/tracker"
)

func TestMonitor_RecomputesOnEveryChange(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	mon := tracker.NewMonitor(m, ledger.Engine{Location: saoPaulo})
	defer mon.Close()

	s, err := mon.Watch(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, s.Loaded)
	assert.Equal(t, 0, s.Report.Balance.TotalMinutes)

	// +20 from a short break
	recordDay(ctx, m, "user-1", "2024-05-10", "08:00", "12:00", "12:40", "17:00")
	s, _ = mon.Snapshot("user-1")
	assert.Equal(t, 20, s.Report.Balance.TotalMinutes)

	// Deleting a punch makes the day incomplete and drops it from the total.
	require.NoError(t, m.Delete(ctx, "user-1-2024-05-10-17:00"))
	s, _ = mon.Snapshot("user-1")
	assert.Equal(t, 0, s.Report.Balance.TotalMinutes)
	assert.Len(t, s.Report.Incomplete(), 1)

	// Settings changes recompute too.
	policy := ledger.IncompletePenalize
	_, err = m.Set(ctx, "user-1", ledger.SettingsPatch{IncompleteDayPolicy: &policy})
	require.NoError(t, err)
	s, _ = mon.Snapshot("user-1")
	assert.Equal(t, -480, s.Report.Balance.TotalMinutes)
}

func TestMonitor_FailureKeepsLastSnapshotStale(t *testing.T) {
	// GIVEN: a user with a computed balance
	// WHEN: the settings provider becomes unreachable
	// THEN: the last good report stays, flagged stale, and nothing retries

	ctx := context.Background()
	f := &flakyStore{Memory: newStore()}
	recordDay(ctx, f.Memory, "user-1", "2024-05-10", "08:00", "12:00", "12:40", "17:00")

	mon := tracker.NewMonitor(f, ledger.Engine{Location: saoPaulo})
	defer mon.Close()
	_, err := mon.Watch(ctx, "user-1")
	require.NoError(t, err)

	f.setFailures(true, false)
	s, err := mon.Recompute(ctx, "user-1")

	require.ErrorIs(t, err, ledger.ErrNetworkFailure)
	assert.ErrorIs(t, err, ledger.ErrMissingSettings)
	assert.True(t, s.Stale)
	assert.Equal(t, 20, s.Report.Balance.TotalMinutes)

	f.setFailures(false, false)
	s, err = mon.Recompute(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, s.Stale)
	assert.Nil(t, s.Err)
}

func TestMonitor_FirstFailureHasNoReport(t *testing.T) {
	f := &flakyStore{Memory: newStore()}
	f.setFailures(false, true)
	mon := tracker.NewMonitor(f, ledger.Engine{Location: saoPaulo})
	defer mon.Close()

	s, err := mon.Watch(context.Background(), "user-1")

	assert.ErrorIs(t, err, ledger.ErrNetworkFailure)
	assert.False(t, s.Loaded)
	assert.True(t, s.Stale)
}

func TestMonitor_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	mon := tracker.NewMonitor(m, ledger.Engine{Location: saoPaulo})
	defer mon.Close()

	var updates []ledger.UserID
	mon.OnUpdate = func(userID ledger.UserID, _ tracker.Snapshot) { updates = append(updates, userID) }

	_, _ = mon.Watch(ctx, "user-1")
	_, _ = mon.Watch(ctx, "user-2")
	updates = nil

	recordDay(ctx, m, "user-2", "2024-05-10", "08:00")
	assert.Equal(t, []ledger.UserID{"user-2"}, updates)

	s1, _ := mon.Snapshot("user-1")
	assert.Empty(t, s1.Report.Summaries)
}

func TestMonitor_UnwatchStopsUpdates(t *testing.T) {
	ctx := context.Background()
	m := newStore()
	mon := tracker.NewMonitor(m, ledger.Engine{Location: saoPaulo})
	defer mon.Close()

	calls := 0
	mon.OnUpdate = func(ledger.UserID, tracker.Snapshot) { calls++ }
	_, _ = mon.Watch(ctx, "user-1")
	mon.Unwatch("user-1")

	recordDay(ctx, m, "user-1", "2024-05-10", "08:00")

	assert.Equal(t, 1, calls)
	_, ok := mon.Snapshot("user-1")
	assert.False(t, ok)
}
