package snapshot

import (
	"sync"
	"time"
)

// Store holds the current Snapshot and applies partial updates to it.
// Writers never mutate the stored value in place: Apply reads the previous
// snapshot, overlays the update and swaps in the merged copy, so readers
// always observe either a fully-old or fully-new snapshot.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	updatedAt time.Time
	subs      []func(Snapshot)
}

func NewStore() *Store {
	return &Store{}
}

// Apply shallow-merges the non-nil fields of u onto the stored snapshot and
// returns the merged result. Subscribers are notified with a copy after the
// swap, outside the lock.
func (s *Store) Apply(u Snapshot) Snapshot {
	s.mu.Lock()
	s.current = merge(s.current, u)
	s.updatedAt = time.Now()
	merged := s.current.Clone()
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(merged)
	}
	return merged
}

// Current returns a copy of the stored snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// UpdatedAt reports when the last update was applied. The zero time means
// no update has been applied yet.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Subscribe registers fn to be called with the merged snapshot after every
// Apply. Callbacks run on the applier's goroutine and must not block.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Rollover promotes the next-period price fields to the current period and
// clears the next-period fields. Called once per calendar day; the caller is
// expected to trigger a fresh price fetch afterwards.
func (s *Store) Rollover() Snapshot {
	s.mu.Lock()
	s.current.TodayPriceAvg = s.current.TomorrowPriceAvg
	s.current.TodayCheapestAt = s.current.TomorrowCheapestAt
	s.current.TomorrowPriceAvg = nil
	s.current.TomorrowCheapestAt = nil
	s.updatedAt = time.Now()
	merged := s.current.Clone()
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(merged)
	}
	return merged
}
