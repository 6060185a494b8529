/*
monitor.go - Live balance per user

PURPOSE:
  Keeps a computed Report for every watched user. Each store change for
  that user triggers a full recompute from a fresh snapshot; nothing is
  patched incrementally, because an edit or a delete can move historical
  totals anywhere in the window.

FAILURE MODEL:
  If settings or events cannot be loaded, or the engine rejects the
  snapshot, the last good report is kept, flagged Stale, and the error is
  recorded on the snapshot. There is no automatic retry; the next change
  or an explicit Recompute tries again.

CONCURRENCY:
  Recomputes for different users never share state. For one user, a
  slower recompute that finishes after a newer one is discarded.
*/
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/metrics"
)

// Snapshot is the latest view of one user's time bank.
type Snapshot struct {
	Report    ledger.Report
	Loaded    bool // at least one recompute succeeded
	Stale     bool
	Err       error
	UpdatedAt time.Time
}

// Monitor recomputes user balances on every store change.
type Monitor struct {
	Gateway ledger.Gateway
	Engine  ledger.Engine
	Now     func() time.Time

	// OnUpdate, if set, is called after every recompute.
	OnUpdate func(ledger.UserID, Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	snapshots map[ledger.UserID]Snapshot
	seq       map[ledger.UserID]uint64
	applied   map[ledger.UserID]uint64
	unsubs    map[ledger.UserID]func()
}

func NewMonitor(gw ledger.Gateway, engine ledger.Engine) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		Gateway:   gw,
		Engine:    engine,
		Now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		snapshots: make(map[ledger.UserID]Snapshot),
		seq:       make(map[ledger.UserID]uint64),
		applied:   make(map[ledger.UserID]uint64),
		unsubs:    make(map[ledger.UserID]func()),
	}
}

// Watch subscribes to the user's changes and runs a first recompute.
// Watching an already watched user only recomputes.
func (m *Monitor) Watch(ctx context.Context, userID ledger.UserID) (Snapshot, error) {
	m.mu.Lock()
	if _, ok := m.unsubs[userID]; !ok {
		m.unsubs[userID] = m.Gateway.Subscribe(userID, func(c ledger.Change) {
			if m.ctx.Err() != nil {
				return
			}
			m.Recompute(m.ctx, c.UserID)
		})
		metrics.WatchedUsers.Inc()
	}
	m.mu.Unlock()

	return m.Recompute(ctx, userID)
}

// Unwatch drops the subscription and the cached snapshot.
func (m *Monitor) Unwatch(userID ledger.UserID) {
	m.mu.Lock()
	unsub, ok := m.unsubs[userID]
	delete(m.unsubs, userID)
	delete(m.snapshots, userID)
	m.mu.Unlock()

	if ok {
		unsub()
		metrics.WatchedUsers.Dec()
	}
}

// Close unwatches every user. Callbacks already running finish but no
// longer store results.
func (m *Monitor) Close() {
	m.cancel()

	m.mu.Lock()
	users := make([]ledger.UserID, 0, len(m.unsubs))
	for userID := range m.unsubs {
		users = append(users, userID)
	}
	m.mu.Unlock()

	for _, userID := range users {
		m.Unwatch(userID)
	}
}

// Snapshot returns the latest snapshot for userID.
func (m *Monitor) Snapshot(userID ledger.UserID) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[userID]
	return s, ok
}

// Recompute loads a fresh snapshot and runs the engine over it. On failure
// the previous report is kept and flagged stale.
func (m *Monitor) Recompute(ctx context.Context, userID ledger.UserID) (Snapshot, error) {
	m.mu.Lock()
	m.seq[userID]++
	seq := m.seq[userID]
	m.mu.Unlock()

	start := time.Now()
	report, cause, err := m.compute(ctx, userID)
	metrics.RecomputeDuration.Observe(float64(time.Since(start).Milliseconds()))

	m.mu.Lock()
	if seq < m.applied[userID] {
		// A newer recompute already landed.
		s := m.snapshots[userID]
		m.mu.Unlock()
		return s, err
	}
	m.applied[userID] = seq

	prev := m.snapshots[userID]
	var s Snapshot
	if err != nil {
		s = prev
		s.Stale = true
		s.Err = err
	} else {
		s = Snapshot{Report: report, Loaded: true, UpdatedAt: m.now()}
	}
	if m.ctx.Err() == nil {
		m.snapshots[userID] = s
	}
	onUpdate := m.OnUpdate
	m.mu.Unlock()

	if err != nil {
		metrics.RecomputeFailures.WithLabelValues(cause).Inc()
		log.Printf("[Monitor] Recompute failed for %s, keeping last snapshot: %v", userID, err)
	}
	if onUpdate != nil {
		onUpdate(userID, s)
	}
	return s, err
}

func (m *Monitor) compute(ctx context.Context, userID ledger.UserID) (ledger.Report, string, error) {
	settings, err := m.Gateway.Get(ctx, userID)
	if err != nil {
		return ledger.Report{}, "settings", fmt.Errorf("%w: %w", ledger.ErrMissingSettings, ledger.WrapGateway("get settings", err))
	}
	events, err := m.Gateway.Query(ctx, userID, nil)
	if err != nil {
		return ledger.Report{}, "events", ledger.WrapGateway("query punches", err)
	}
	withdrawals, err := m.Gateway.Withdrawals(ctx, userID)
	if err != nil {
		return ledger.Report{}, "withdrawals", ledger.WrapGateway("query withdrawals", err)
	}

	report, err := m.Engine.Compute(events, withdrawals, &settings)
	if err != nil {
		return ledger.Report{}, "engine", err
	}
	return report, "", nil
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
