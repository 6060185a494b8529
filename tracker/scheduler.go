/*
scheduler.go - Automated settlement scheduler

PURPOSE:
  Periodically checks every user's settlement window and, once a window
  has elapsed, moves the user's settlement date forward to the start of
  the current window. Everything dated before it stops counting, which
  zeroes the previous window's balance.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only moves settlement dates forward, never backwards
  - Writes through the settings provider, so watchers recompute

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewSettlementScheduler(store, loc)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/settlement.go: Window arithmetic
*/
package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/edufeq03/app-ponto-sub000/ledger"
	"github.com/edufeq03/app-ponto-sub000/metrics"
)

// SettlementScheduler advances settlement dates as windows elapse.
type SettlementScheduler struct {
	Settings      ledger.SettingsProvider
	Location      *time.Location
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSettlementScheduler creates a disabled scheduler.
func NewSettlementScheduler(settings ledger.SettingsProvider, loc *time.Location) *SettlementScheduler {
	return &SettlementScheduler{
		Settings:      settings,
		Location:      loc,
		CheckInterval: 1 * time.Hour,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run(ss.ticker, ss.stop)

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SettlementScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ss.wg.Done()

	// Run immediately on start
	ss.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			ss.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow checks every user once and returns how many settlement dates moved.
func (ss *SettlementScheduler) RunNow(ctx context.Context) (int, error) {
	now := time.Now()
	if ss.Now != nil {
		now = ss.Now()
	}

	users, err := ss.Settings.Users(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing users: %v", err)
		return 0, ledger.WrapGateway("list users", err)
	}

	advanced := 0
	for _, userID := range users {
		moved, err := ss.advance(ctx, userID, now)
		if err != nil {
			log.Printf("[Scheduler] Error settling %s: %v", userID, err)
			continue
		}
		if moved {
			advanced++
		}
	}

	if advanced > 0 {
		log.Printf("[Scheduler] Completed: %d of %d users settled", advanced, len(users))
	}
	return advanced, nil
}

func (ss *SettlementScheduler) advance(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error) {
	s, err := ss.Settings.Get(ctx, userID)
	if err != nil {
		return false, ledger.WrapGateway("get settings", err)
	}
	s = s.WithDefaults()

	anchor := s.SettlementDate
	if ss.Location != nil {
		anchor = anchor.In(ss.Location)
	}
	boundary := s.SettlementPolicy.LatestBoundary(anchor, now)
	if !boundary.After(s.SettlementDate) {
		return false, nil
	}

	if _, err := ss.Settings.Set(ctx, userID, ledger.SettingsPatch{SettlementDate: &boundary}); err != nil {
		return false, ledger.WrapGateway("set settings", err)
	}
	metrics.SettlementsAdvanced.Inc()
	log.Printf("[Scheduler] Settled %s: %s -> %s (%s)",
		userID, s.SettlementDate.Format(time.DateOnly), boundary.Format(time.DateOnly), s.SettlementPolicy)
	return true, nil
}
