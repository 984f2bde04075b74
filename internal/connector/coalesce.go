package connector

import (
	"sync"
	"time"

	"cryptoflow/internal/model"
)

// Coalescer throttles shadow-book publishes to at most once per interval
// per market, always letting the first update after a pause through
// immediately (spec.md §4.4). It owns a background timer per market rather
// than a clock tick over all markets, so a quiet market never delays a busy
// one.
type Coalescer struct {
	interval time.Duration
	out      chan<- model.BookSnapshot

	mu      sync.Mutex
	pending map[model.MarketKey]*coalesceState
}

type coalesceState struct {
	mu        sync.Mutex
	book      *ShadowBook
	lastPub   time.Time
	timer     *time.Timer
	scheduled bool
}

// NewCoalescer creates a Coalescer that publishes onto out.
func NewCoalescer(interval time.Duration, out chan<- model.BookSnapshot) *Coalescer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Coalescer{
		interval: interval,
		out:      out,
		pending:  make(map[model.MarketKey]*coalesceState),
	}
}

// Touch notifies the Coalescer that book has a new update pending. If this
// is the first update since the last publish (or more than interval has
// elapsed), the snapshot is published immediately; otherwise a timer is
// armed to flush at the end of the current window.
func (c *Coalescer) Touch(book *ShadowBook) {
	key := model.MarketKey{Venue: book.venue, Pair: book.pair}

	c.mu.Lock()
	state, ok := c.pending[key]
	if !ok {
		state = &coalesceState{book: book}
		c.pending[key] = state
	}
	c.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(state.lastPub)
	if state.lastPub.IsZero() || elapsed >= c.interval {
		state.lastPub = now
		c.publish(book)
		return
	}

	if state.scheduled {
		return
	}
	state.scheduled = true
	wait := c.interval - elapsed
	state.timer = time.AfterFunc(wait, func() {
		state.mu.Lock()
		state.lastPub = time.Now()
		state.scheduled = false
		state.mu.Unlock()
		c.publish(book)
	})
}

func (c *Coalescer) publish(book *ShadowBook) {
	snap := book.Snapshot()
	select {
	case c.out <- snap:
	default:
		// Slow consumer: drop rather than block the connector's read loop.
		// The Book Store always holds the latest snapshot per market, so a
		// dropped intermediate update is immaterial once the next one lands.
	}
}

// Stop cancels any pending flush timers.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, state := range c.pending {
		state.mu.Lock()
		if state.timer != nil {
			state.timer.Stop()
		}
		state.mu.Unlock()
	}
}
