// Package bookstore implements the Book Store of spec.md §4.3: a concurrent
// mapping keyed by (venue, canonical pair) holding the latest normalized
// order-book snapshot per market. Writers replace entries atomically via a
// pointer swap; readers take a reference and never hold a lock across their
// own work.
package bookstore

import (
	"sync"
	"sync/atomic"
	"time"

	"cryptoflow/internal/model"
)

// Store is safe for concurrent use by many connector writers and many engine
// readers.
type Store struct {
	maxStaleness time.Duration

	mu      sync.RWMutex // guards the entries map itself, not its values
	entries map[model.MarketKey]*atomic.Pointer[model.BookSnapshot]
}

// New returns a Store that treats a snapshot older than maxStaleness (ts_local
// comparison) as absent when Get is called.
func New(maxStaleness time.Duration) *Store {
	return &Store{
		maxStaleness: maxStaleness,
		entries:      make(map[model.MarketKey]*atomic.Pointer[model.BookSnapshot]),
	}
}

// Put atomically replaces the snapshot for its (venue, pair). It rejects
// snapshots that violate the no-cross / level-ordering invariants, and
// snapshots whose TsLocal is not strictly after the stored one's, returning
// false without mutating the store.
func (s *Store) Put(snap model.BookSnapshot) bool {
	if !snap.Valid() {
		return false
	}

	key := model.MarketKey{Venue: snap.Venue, Pair: snap.Pair}

	s.mu.RLock()
	slot, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		slot, ok = s.entries[key]
		if !ok {
			slot = &atomic.Pointer[model.BookSnapshot]{}
			s.entries[key] = slot
		}
		s.mu.Unlock()
	}

	stored := snap
	for {
		prev := slot.Load()
		if prev != nil && !snap.TsLocal.After(prev.TsLocal) {
			return false
		}
		if slot.CompareAndSwap(prev, &stored) {
			return true
		}
	}
}

// Get returns the current snapshot for (venue, pair). ok is false if the
// market is unknown, or if the known snapshot is older than maxStaleness.
func (s *Store) Get(venue model.Venue, pair model.Pair) (model.BookSnapshot, bool) {
	key := model.MarketKey{Venue: venue, Pair: pair}

	s.mu.RLock()
	slot, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return model.BookSnapshot{}, false
	}

	ptr := slot.Load()
	if ptr == nil {
		return model.BookSnapshot{}, false
	}

	if s.maxStaleness > 0 && time.Since(ptr.TsLocal) > s.maxStaleness {
		return model.BookSnapshot{}, false
	}

	return *ptr, true
}

// PairsOf returns the distinct canonical pairs known for a venue, regardless
// of staleness (a stale market is still "known", just not servable).
func (s *Store) PairsOf(venue model.Venue) []model.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.Pair]struct{})
	for key := range s.entries {
		if key.Venue == venue {
			seen[key.Pair] = struct{}{}
		}
	}
	out := make([]model.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

// VenuesOf returns the distinct venues that have ever published a book for
// pair.
func (s *Store) VenuesOf(pair model.Pair) []model.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.Venue]struct{})
	for key := range s.entries {
		if key.Pair == pair {
			seen[key.Venue] = struct{}{}
		}
	}
	out := make([]model.Venue, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}
