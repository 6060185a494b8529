// Package store provides in-memory gateway implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Gateway in memory.
type Memory struct {
	ledger.Broadcaster

	// Now stamps default settings on first access. Defaults to time.Now.
	Now func() time.Time

	mu          sync.RWMutex
	events      map[ledger.UserID][]ledger.PunchEvent
	owners      map[ledger.EventID]ledger.UserID
	withdrawals map[ledger.UserID][]ledger.WithdrawalEvent
	settings    map[ledger.UserID]ledger.UserSettings
}

var _ ledger.Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		Now:         time.Now,
		events:      make(map[ledger.UserID][]ledger.PunchEvent),
		owners:      make(map[ledger.EventID]ledger.UserID),
		withdrawals: make(map[ledger.UserID][]ledger.WithdrawalEvent),
		settings:    make(map[ledger.UserID]ledger.UserSettings),
	}
}

// -----------------------------------------------------------------------------
// Punches
// -----------------------------------------------------------------------------

// Append inserts a punch keeping the user's list sorted by timestamp.
func (m *Memory) Append(_ context.Context, e ledger.PunchEvent) error {
	m.mu.Lock()
	m.insertLocked(e)
	m.mu.Unlock()

	m.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

func (m *Memory) insertLocked(e ledger.PunchEvent) {
	events := m.events[e.UserID]

	// Binary search for insertion point
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.After(e.Timestamp)
	})

	events = append(events, ledger.PunchEvent{})
	copy(events[i+1:], events[i:])
	events[i] = e
	m.events[e.UserID] = events
	m.owners[e.ID] = e.UserID
}

func (m *Memory) Query(_ context.Context, userID ledger.UserID, r *ledger.DateRange) ([]ledger.PunchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.PunchEvent, 0, len(m.events[userID]))
	for _, e := range m.events[userID] {
		if r.Includes(e.Timestamp) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) Event(_ context.Context, id ledger.EventID) (ledger.PunchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.indexLocked(id)
	if !ok {
		return ledger.PunchEvent{}, ledger.ErrEventNotFound
	}
	return m.events[m.owners[id]][i], nil
}

func (m *Memory) Update(_ context.Context, e ledger.PunchEvent) error {
	m.mu.Lock()
	if _, ok := m.indexLocked(e.ID); !ok {
		m.mu.Unlock()
		return ledger.ErrEventNotFound
	}
	m.removeLocked(e.ID)
	m.insertLocked(e)
	m.mu.Unlock()

	m.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

func (m *Memory) Delete(ctx context.Context, id ledger.EventID) error {
	return m.BatchDelete(ctx, []ledger.EventID{id})
}

// BatchDelete removes all ids or none of them.
func (m *Memory) BatchDelete(_ context.Context, ids []ledger.EventID) error {
	m.mu.Lock()
	for _, id := range ids {
		if _, ok := m.indexLocked(id); !ok {
			m.mu.Unlock()
			return ledger.ErrEventNotFound
		}
	}
	touched := make(map[ledger.UserID]bool)
	for _, id := range ids {
		touched[m.owners[id]] = true
	}
	for _, id := range ids {
		m.removeLocked(id)
	}
	m.mu.Unlock()

	for userID := range touched {
		m.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangePunches})
	}
	return nil
}

func (m *Memory) indexLocked(id ledger.EventID) (int, bool) {
	userID, ok := m.owners[id]
	if !ok {
		return 0, false
	}
	for i, e := range m.events[userID] {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (m *Memory) removeLocked(id ledger.EventID) {
	i, ok := m.indexLocked(id)
	if !ok {
		return
	}
	userID := m.owners[id]
	events := m.events[userID]
	m.events[userID] = append(events[:i:i], events[i+1:]...)
	delete(m.owners, id)
}

// -----------------------------------------------------------------------------
// Withdrawals
// -----------------------------------------------------------------------------

func (m *Memory) AppendWithdrawal(_ context.Context, w ledger.WithdrawalEvent) error {
	m.mu.Lock()
	m.withdrawals[w.UserID] = append(m.withdrawals[w.UserID], w)
	m.mu.Unlock()

	m.Publish(ledger.Change{UserID: w.UserID, Kind: ledger.ChangeWithdrawals})
	return nil
}

func (m *Memory) Withdrawals(_ context.Context, userID ledger.UserID) ([]ledger.WithdrawalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.WithdrawalEvent, len(m.withdrawals[userID]))
	copy(result, m.withdrawals[userID])
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) DeleteWithdrawal(_ context.Context, id ledger.WithdrawalID) error {
	m.mu.Lock()
	for userID, ws := range m.withdrawals {
		for i, w := range ws {
			if w.ID == id {
				m.withdrawals[userID] = append(ws[:i:i], ws[i+1:]...)
				m.mu.Unlock()
				m.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangeWithdrawals})
				return nil
			}
		}
	}
	m.mu.Unlock()
	return ledger.ErrEventNotFound
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

// Get returns the user's settings, storing defaults on first access.
func (m *Memory) Get(_ context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(userID), nil
}

// Set merges patch into the stored settings.
func (m *Memory) Set(_ context.Context, userID ledger.UserID, patch ledger.SettingsPatch) (ledger.UserSettings, error) {
	m.mu.Lock()
	merged, err := m.settingsLocked(userID).Merge(patch)
	if err != nil {
		m.mu.Unlock()
		return ledger.UserSettings{}, err
	}
	m.settings[userID] = merged
	m.mu.Unlock()

	m.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangeSettings})
	return merged, nil
}

func (m *Memory) Users(_ context.Context) ([]ledger.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]ledger.UserID, 0, len(m.settings))
	for userID := range m.settings {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *Memory) settingsLocked(userID ledger.UserID) ledger.UserSettings {
	s, ok := m.settings[userID]
	if !ok {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		s = ledger.DefaultSettings(now())
		m.settings[userID] = s
	}
	return s
}
