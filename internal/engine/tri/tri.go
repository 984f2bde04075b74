package tri

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/fees"
	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// defaultNeighborSafetyBound caps per-base neighbor fan-out per spec.md
// §4.7: bases exceeding it are skipped with a warning rather than paying
// O(d^2) enumeration cost every tick.
const defaultNeighborSafetyBound = 200

// Config bundles the scan parameters drawn from spec.md §6.
type Config struct {
	ScanInterval  time.Duration
	MinNotional   decimal.Decimal
	MinTriGainBps float64
	Bases         []string
	ExcludeQuotes map[string]struct{}
	PathCacheTTL  time.Duration
}

type cyclePath struct {
	base, x, y string
}

type cachedPaths struct {
	paths     []cyclePath
	signature string
	expiresAt time.Time
}

// Engine scans, independently per venue, the directed asset graph built from
// the shared Store and emits the best surviving 3-cycle per (venue, base).
type Engine struct {
	cfg      Config
	store    *bookstore.Store
	feeTable *fees.Table
	log      *logrus.Entry
	Emit     func(model.Opportunity)

	mu    sync.Mutex
	cache map[model.Venue]cachedPaths

	scans   int64
	emitted int64
}

// Stats is a point-in-time snapshot of the engine's scan activity, mirroring
// the self-report counters original_source's tri_engine.py exposes via
// get_stats() for periodic logging.
type Stats struct {
	Scans   int64
	Emitted int64
}

// GetStats returns the engine's current counters. Safe for concurrent use.
func (e *Engine) GetStats() Stats {
	return Stats{
		Scans:   atomic.LoadInt64(&e.scans),
		Emitted: atomic.LoadInt64(&e.emitted),
	}
}

// New constructs a Tri Engine. Emit is called synchronously from the scan
// goroutine, same contract as the Cross Engine.
func New(cfg Config, store *bookstore.Store, feeTable *fees.Table, log *logrus.Entry, emit func(model.Opportunity)) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		feeTable: feeTable,
		log:      log,
		Emit:     emit,
		cache:    make(map[model.Venue]cachedPaths),
	}
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

// scanOnce runs a single pass over every venue. Exposed for tests so a scan
// can be driven deterministically without a ticker.
func (e *Engine) scanOnce() {
	atomic.AddInt64(&e.scans, 1)
	for _, venue := range model.Venues {
		e.scanVenue(venue)
	}
}

func (e *Engine) scanVenue(venue model.Venue) {
	graph := BuildGraph(e.store, venue, e.cfg.MinNotional)
	if graph.Empty() {
		return
	}

	feeEntry, ok := e.feeTable.Lookup(model.MarketKey{Venue: venue})
	if !ok {
		return
	}

	paths := e.pathsFor(venue, graph)

	best := make(map[string]scoredOpportunity, len(e.cfg.Bases))
	for _, p := range paths {
		scored, ok := e.evaluatePath(venue, graph, p, feeEntry.Taker)
		if !ok {
			continue
		}
		cur, exists := best[p.base]
		if !exists || betterTri(scored, cur) {
			best[p.base] = scored
		}
	}

	for _, s := range best {
		atomic.AddInt64(&e.emitted, 1)
		e.Emit(s.opp)
	}
}

// pathsFor returns the cached (base, x, y) topology for venue, recomputing
// it only when the graph's asset connectivity changed or PathCacheTTL
// elapsed since the last recompute.
func (e *Engine) pathsFor(venue model.Venue, graph *Graph) []cyclePath {
	sig := graph.signature()

	e.mu.Lock()
	cached, ok := e.cache[venue]
	e.mu.Unlock()

	if ok && cached.signature == sig && time.Now().Before(cached.expiresAt) {
		return cached.paths
	}

	paths := enumeratePaths(graph, e.cfg.Bases, e.cfg.ExcludeQuotes, e.log)

	ttl := e.cfg.PathCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	e.mu.Lock()
	e.cache[venue] = cachedPaths{paths: paths, signature: sig, expiresAt: time.Now().Add(ttl)}
	e.mu.Unlock()

	return paths
}

// enumeratePaths walks base -> X -> Y -> base for every configured base
// asset, keeping only topologically closed triangles (an edge back to base
// exists right now). Rates are re-evaluated against the live graph by the
// caller on every tick regardless of this cache.
func enumeratePaths(graph *Graph, bases []string, excludeQuotes map[string]struct{}, log *logrus.Entry) []cyclePath {
	var paths []cyclePath

	for _, base := range bases {
		neighbors := graph.Neighbors(base)
		if len(neighbors) > defaultNeighborSafetyBound {
			if log != nil {
				log.WithField("base", base).WithField("neighbors", len(neighbors)).
					Warn("tri engine: base neighbor count exceeds safety bound, skipping")
			}
			continue
		}

		for _, e1 := range neighbors {
			x := e1.To
			if x == base || excluded(x, excludeQuotes) {
				continue
			}
			for _, e2 := range graph.Neighbors(x) {
				y := e2.To
				if y == base || y == x || excluded(y, excludeQuotes) {
					continue
				}
				if _, ok := graph.Edge(y, base); ok {
					paths = append(paths, cyclePath{base: base, x: x, y: y})
				}
			}
		}
	}

	return paths
}

func excluded(asset string, excludeQuotes map[string]struct{}) bool {
	if len(excludeQuotes) == 0 {
		return false
	}
	_, ok := excludeQuotes[asset]
	return ok
}

type scoredOpportunity struct {
	opp       model.Opportunity
	depthUsed float64
}

// evaluatePath re-resolves the three live edges for a cached path and scores
// the cycle per spec.md §4.7 step 3.
func (e *Engine) evaluatePath(venue model.Venue, graph *Graph, p cyclePath, taker float64) (scoredOpportunity, bool) {
	e1, ok := graph.Edge(p.base, p.x)
	if !ok {
		return scoredOpportunity{}, false
	}
	e2, ok := graph.Edge(p.x, p.y)
	if !ok {
		return scoredOpportunity{}, false
	}
	e3, ok := graph.Edge(p.y, p.base)
	if !ok {
		return scoredOpportunity{}, false
	}

	r := e1.Rate.Mul(e2.Rate).Mul(e3.Rate)
	rF, _ := r.Float64()
	grossBps := (rF - 1) * 10000

	oneMinusTaker := decimal.NewFromFloat(1 - taker)
	netFactor := r.Mul(oneMinusTaker).Mul(oneMinusTaker).Mul(oneMinusTaker)
	netFactorF, _ := netFactor.Float64()
	netBps := (netFactorF - 1) * 10000

	if netBps < e.cfg.MinTriGainBps {
		return scoredOpportunity{}, false
	}

	depth := e1.FilledQty.Add(e2.FilledQty).Add(e3.FilledQty)
	depthF, _ := depth.Float64()

	notional, _ := e.cfg.MinNotional.Float64()
	price1, _ := e1.Price.Float64()
	price2, _ := e2.Price.Float64()
	price3, _ := e3.Price.Float64()

	opp := model.Opportunity{
		Kind:  model.KindTri,
		Venue: venue,
		Base:  p.base,
		Legs: [3]model.Leg{
			{Pair: e1.Pair, Side: e1.Side, Price: price1},
			{Pair: e2.Pair, Side: e2.Side, Price: price2},
			{Pair: e3.Pair, Side: e3.Side, Price: price3},
		},
		Notional:  notional,
		GrossBps:  grossBps,
		NetBps:    netBps,
		TDetected: time.Now(),
	}

	return scoredOpportunity{opp: opp, depthUsed: depthF}, true
}

// betterTri applies spec.md §4.7's tie-break: max net_bps, then shortest
// total VWAP depth used.
func betterTri(a, b scoredOpportunity) bool {
	if a.opp.NetBps != b.opp.NetBps {
		return a.opp.NetBps > b.opp.NetBps
	}
	return a.depthUsed < b.depthUsed
}
