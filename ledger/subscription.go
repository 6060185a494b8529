package ledger

import "sync"

// ChangeKind tells a subscriber what moved. Subscribers recompute from
// scratch either way.
type ChangeKind string

const (
	ChangePunches     ChangeKind = "punches"
	ChangeWithdrawals ChangeKind = "withdrawals"
	ChangeSettings    ChangeKind = "settings"
)

type Change struct {
	UserID UserID
	Kind   ChangeKind
}

// Broadcaster fans changes out to per-user subscribers.
// The zero value is ready to use.
type Broadcaster struct {
	mu   sync.RWMutex
	next int
	subs map[UserID]map[int]func(Change)
}

// Subscribe registers fn for userID and returns a function that removes it.
func (b *Broadcaster) Subscribe(userID UserID, fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[UserID]map[int]func(Change))
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]func(Change))
	}
	id := b.next
	b.next++
	b.subs[userID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
		})
	}
}

// Publish calls every subscriber of c.UserID. Callbacks run outside the lock
// so they may subscribe, unsubscribe or read the store.
func (b *Broadcaster) Publish(c Change) {
	b.mu.RLock()
	fns := make([]func(Change), 0, len(b.subs[c.UserID]))
	for _, fn := range b.subs[c.UserID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
