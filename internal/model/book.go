package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single price/size point on one side of a book. Size is in base
// units; Price is quote-per-base.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is the normalized, venue-agnostic view of one order book at
// an instant. Bids are sorted descending by price, Asks ascending. Both
// sides are bounded to DEPTH_LEVELS entries by the Connector that produced
// the snapshot.
type BookSnapshot struct {
	Venue      Venue
	Pair       Pair
	Bids       []Level
	Asks       []Level
	TsExchange time.Time // zero value if the venue does not provide one
	TsLocal    time.Time
	Seq        int64 // 0 if the venue does not expose a sequence
}

// Crossed reports whether the book violates the no-cross invariant
// (bids[0].Price < asks[0].Price). An empty side is never considered
// crossed by itself; callers that require both sides populated must check
// separately.
func (b BookSnapshot) Crossed() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}
	return b.Bids[0].Price.GreaterThanOrEqual(b.Asks[0].Price)
}

// MonotonicBids reports whether bid levels are strictly descending in price.
func (b BookSnapshot) MonotonicBids() bool {
	for i := 1; i < len(b.Bids); i++ {
		if !b.Bids[i-1].Price.GreaterThan(b.Bids[i].Price) {
			return false
		}
	}
	return true
}

// MonotonicAsks reports whether ask levels are strictly ascending in price.
func (b BookSnapshot) MonotonicAsks() bool {
	for i := 1; i < len(b.Asks); i++ {
		if !b.Asks[i-1].Price.LessThan(b.Asks[i].Price) {
			return false
		}
	}
	return true
}

// Valid runs the structural invariants spec'd for a publishable snapshot:
// no crossed book and strict monotonicity on both sides.
func (b BookSnapshot) Valid() bool {
	return !b.Crossed() && b.MonotonicBids() && b.MonotonicAsks()
}
