package connector

import (
	"sort"
	"sync"
	"time"

	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
)

// Side identifies one side of a book for a shadow-book update.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// ShadowBook is the live per-market working state a Connector updates from
// depth deltas (or full snapshots) before coalescing a publish to the Book
// Store. It is safe for concurrent use.
type ShadowBook struct {
	venue model.Venue
	pair  model.Pair
	depth int

	mu   sync.Mutex
	bids map[string]model.Level
	asks map[string]model.Level
	seq  int64
}

// NewShadowBook creates an empty shadow book bounded to depth levels per
// side once rendered into a snapshot.
func NewShadowBook(venue model.Venue, pair model.Pair, depth int) *ShadowBook {
	if depth <= 0 {
		depth = 20
	}
	return &ShadowBook{
		venue: venue,
		pair:  pair,
		depth: depth,
		bids:  make(map[string]model.Level),
		asks:  make(map[string]model.Level),
	}
}

// Reset clears all levels, used before replaying a REST snapshot during
// resync (spec.md §4.4's sequence discipline).
func (s *ShadowBook) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids = make(map[string]model.Level)
	s.asks = make(map[string]model.Level)
}

// ApplyLevel upserts one price level. A zero size removes the level, the
// usual depth-delta convention (Binance, OKX, Bybit, KuCoin all use it).
func (s *ShadowBook) ApplyLevel(side Side, price, size decimal.Decimal, seq int64) {
	key := price.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.bids
	if side == SideAsk {
		target = s.asks
	}

	if size.IsZero() {
		delete(target, key)
	} else {
		target[key] = model.Level{Price: price, Size: size}
	}
	if seq > s.seq {
		s.seq = seq
	}
}

// Seq returns the highest sequence number applied so far.
func (s *ShadowBook) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Snapshot renders the current shadow state into a normalized, depth-bounded
// BookSnapshot with TsLocal set to now.
func (s *ShadowBook) Snapshot() model.BookSnapshot {
	s.mu.Lock()
	bids := make([]model.Level, 0, len(s.bids))
	for _, lvl := range s.bids {
		bids = append(bids, lvl)
	}
	asks := make([]model.Level, 0, len(s.asks))
	for _, lvl := range s.asks {
		asks = append(asks, lvl)
	}
	seq := s.seq
	depth := s.depth
	s.mu.Unlock()

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	if len(bids) > depth {
		bids = bids[:depth]
	}
	if len(asks) > depth {
		asks = asks[:depth]
	}

	return model.BookSnapshot{
		Venue:   s.venue,
		Pair:    s.pair,
		Bids:    bids,
		Asks:    asks,
		TsLocal: time.Now(),
		Seq:     seq,
	}
}
