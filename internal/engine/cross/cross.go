// Package cross implements the Cross Engine of spec.md §4.6: every
// CROSS_SCAN_MS it compares each pair's books across every ordered venue pair
// and emits opportunities that clear MIN_SPREAD_BPS after fees.
package cross

import (
	"context"
	"sync/atomic"
	"time"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/fees"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"
	"cryptoflow/internal/vwap"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config bundles the scan parameters drawn from spec.md §6.
type Config struct {
	ScanInterval time.Duration
	MinNotional  decimal.Decimal
	MinSpreadBps float64
}

// Engine scans a shared Registry/Store/Table on a tick and forwards
// surviving opportunities to Emit.
type Engine struct {
	cfg      Config
	store    *bookstore.Store
	registry *symbols.Registry
	feeTable *fees.Table
	log      *logrus.Entry
	Emit     func(model.Opportunity)

	scans     int64
	emitted   int64
	pairsSeen int64
}

// Stats is a point-in-time snapshot of the engine's scan activity, mirroring
// the self-report counters original_source's engine.py exposes via
// get_stats() for periodic logging.
type Stats struct {
	Scans         int64
	Emitted       int64
	PairsLastScan int64
}

// GetStats returns the engine's current counters. Safe for concurrent use.
func (e *Engine) GetStats() Stats {
	return Stats{
		Scans:         atomic.LoadInt64(&e.scans),
		Emitted:       atomic.LoadInt64(&e.emitted),
		PairsLastScan: atomic.LoadInt64(&e.pairsSeen),
	}
}

// New constructs a Cross Engine. Emit is called synchronously from the scan
// goroutine for each surviving opportunity; callers that need async handling
// must make Emit non-blocking themselves (the Emitter's queues do this).
func New(cfg Config, store *bookstore.Store, registry *symbols.Registry, feeTable *fees.Table, log *logrus.Entry, emit func(model.Opportunity)) *Engine {
	return &Engine{cfg: cfg, store: store, registry: registry, feeTable: feeTable, log: log, Emit: emit}
}

// Run ticks every cfg.ScanInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanOnce()
		}
	}
}

// scanOnce runs a single pass over every pair with ≥2 live books. Exposed
// for tests so a scan can be driven deterministically without a ticker.
func (e *Engine) scanOnce() {
	atomic.AddInt64(&e.scans, 1)
	pairs := e.pairsWithMultipleBooks()
	atomic.StoreInt64(&e.pairsSeen, int64(len(pairs)))

	for _, pair := range pairs {
		venues := e.store.VenuesOf(pair)
		if len(venues) < 2 {
			continue
		}

		var best *model.Opportunity
		for _, buyVenue := range venues {
			for _, sellVenue := range venues {
				if buyVenue == sellVenue {
					continue
				}
				opp, ok := e.evaluate(pair, buyVenue, sellVenue)
				if !ok {
					continue
				}
				if best == nil || betterCross(opp, *best) {
					best = &opp
				}
			}
		}

		if best != nil {
			atomic.AddInt64(&e.emitted, 1)
			e.Emit(*best)
		}
	}
}

// pairsWithMultipleBooks collects every distinct pair currently tracked by
// the store, deduplicated across venues.
func (e *Engine) pairsWithMultipleBooks() []model.Pair {
	seen := make(map[model.Pair]struct{})
	for _, v := range model.Venues {
		for _, p := range e.store.PairsOf(v) {
			seen[p] = struct{}{}
		}
	}
	out := make([]model.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

func (e *Engine) evaluate(pair model.Pair, buyVenue, sellVenue model.Venue) (model.Opportunity, bool) {
	askBook, ok := e.store.Get(buyVenue, pair)
	if !ok {
		return model.Opportunity{}, false
	}
	bidBook, ok := e.store.Get(sellVenue, pair)
	if !ok {
		return model.Opportunity{}, false
	}

	buyFill, ok := vwap.Fill(askBook.Asks, e.cfg.MinNotional)
	if !ok {
		return model.Opportunity{}, false
	}
	sellFill, ok := vwap.Fill(bidBook.Bids, e.cfg.MinNotional)
	if !ok {
		return model.Opportunity{}, false
	}

	buyFee, ok := e.feeTable.Lookup(model.MarketKey{Venue: buyVenue, Pair: pair})
	if !ok {
		return model.Opportunity{}, false
	}
	sellFee, ok := e.feeTable.Lookup(model.MarketKey{Venue: sellVenue, Pair: pair})
	if !ok {
		return model.Opportunity{}, false
	}

	buyVWAP, _ := buyFill.VWAP.Float64()
	sellVWAP, _ := sellFill.VWAP.Float64()
	if buyVWAP <= 0 {
		return model.Opportunity{}, false
	}

	grossBps := (sellVWAP/buyVWAP - 1) * 10000
	netBps := grossBps - (buyFee.Taker+sellFee.Taker)*10000

	if netBps < e.cfg.MinSpreadBps {
		return model.Opportunity{}, false
	}

	fillable := decimal.Min(buyFill.FillableNotional, sellFill.FillableNotional)
	fillableF, _ := fillable.Float64()

	return model.Opportunity{
		Kind:             model.KindCross,
		Pair:             pair,
		BuyVenue:         buyVenue,
		SellVenue:        sellVenue,
		BuyVWAP:          buyVWAP,
		SellVWAP:         sellVWAP,
		FillableNotional: fillableF,
		Notional:         fillableF,
		GrossBps:         grossBps,
		NetBps:           netBps,
		TDetected:        time.Now(),
	}, true
}

// betterCross applies spec.md §4.6's tie-break: max net_bps, then max
// fillable notional, then lexicographic (buy_venue, sell_venue).
func betterCross(a, b model.Opportunity) bool {
	if a.NetBps != b.NetBps {
		return a.NetBps > b.NetBps
	}
	if a.FillableNotional != b.FillableNotional {
		return a.FillableNotional > b.FillableNotional
	}
	if a.BuyVenue != b.BuyVenue {
		return a.BuyVenue < b.BuyVenue
	}
	return a.SellVenue < b.SellVenue
}
