package connector

import "sync"

// SeqGapTracker detects a sequence gap for venues that expose a simple
// monotonic sequence per market (KuCoin, Bybit): the next delta's sequence
// must be exactly last+1.
type SeqGapTracker struct {
	mu   sync.Mutex
	last int64
	init bool
}

// Observe records seq and reports whether a gap was detected. The first
// observation after construction or after Reset never reports a gap.
func (t *SeqGapTracker) Observe(seq int64) (gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.init {
		t.last = seq
		t.init = true
		return false
	}
	if seq <= t.last {
		// Duplicate or out-of-order replay; not a forward gap.
		return false
	}
	gap = seq != t.last+1
	t.last = seq
	return gap
}

// Reset clears tracked state so the next Observe starts a fresh sequence and
// reports no gap.
func (t *SeqGapTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init = false
	t.last = 0
}

// BinanceWindowTracker implements Binance's documented spot depth-stream gap
// check: the first applied event must straddle the REST snapshot's
// lastUpdateId (U <= lastUpdateId+1 <= u), and every event after that must
// chain directly off the previous one's final update id (U == previous u+1).
type BinanceWindowTracker struct {
	mu          sync.Mutex
	lastUpdated int64
	synced      bool
}

// Sync primes the tracker with the REST snapshot's lastUpdateId.
func (t *BinanceWindowTracker) Sync(lastUpdateID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUpdated = lastUpdateID
	t.synced = false
}

// Observe validates one depth event's firstUpdateID (U) and finalUpdateID
// (u). It reports whether the event is acceptable and whether a gap was
// detected that requires a fresh resync.
func (t *BinanceWindowTracker) Observe(firstUpdateID, finalUpdateID int64) (accept, gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.synced {
		if finalUpdateID < t.lastUpdated+1 {
			// Stale event from before the snapshot; drop silently.
			return false, false
		}
		if firstUpdateID > t.lastUpdated+1 {
			return false, true
		}
		t.synced = true
		t.lastUpdated = finalUpdateID
		return true, false
	}

	if firstUpdateID != t.lastUpdated+1 {
		return false, true
	}

	t.lastUpdated = finalUpdateID
	return true, false
}

// Reset makes the next Observe run the first-event window check again,
// against the last recorded update id; it does not clear that id (Sync
// replaces it).
func (t *BinanceWindowTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced = false
}
