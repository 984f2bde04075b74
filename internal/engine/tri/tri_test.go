package tri

import (
	"fmt"
	"testing"
	"time"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/fees"
	"cryptoflow/internal/model"

	"github.com/sirupsen/logrus"
)

func newTestEngine(t *testing.T, store *bookstore.Store, cfg Config) (*Engine, *[]model.Opportunity) {
	t.Helper()
	var emitted []model.Opportunity
	log := logrus.NewEntry(logrus.New())
	e := New(cfg, store, fees.NewTable(), log, func(o model.Opportunity) {
		emitted = append(emitted, o)
	})
	return e, &emitted
}

// seedProfitableTriangle wires BTC -> ETH -> USDT -> BTC with rates chosen so
// the product comfortably clears fees: selling 1 BTC yields 16 ETH, selling
// 16 ETH yields 16160 USDT, and 16160 USDT buys back more than 1 BTC.
func seedProfitableTriangle(t *testing.T, store *bookstore.Store) {
	t.Helper()
	putBook(t, store, model.VenueBinance, "BTC", "ETH",
		[]model.Level{{Price: d("16"), Size: d("10")}},
		[]model.Level{{Price: d("16.05"), Size: d("10")}},
	)
	putBook(t, store, model.VenueBinance, "ETH", "USDT",
		[]model.Level{{Price: d("1010"), Size: d("100")}},
		[]model.Level{{Price: d("1011"), Size: d("100")}},
	)
	putBook(t, store, model.VenueBinance, "BTC", "USDT",
		[]model.Level{{Price: d("16000"), Size: d("10")}},
		[]model.Level{{Price: d("16010"), Size: d("10")}},
	)
}

func TestScanOnceEmitsProfitableTriangle(t *testing.T) {
	store := bookstore.New(time.Hour)
	seedProfitableTriangle(t, store)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval:  time.Second,
		MinNotional:   d("100"),
		MinTriGainBps: 1,
		Bases:         []string{"BTC"},
		PathCacheTTL:  time.Minute,
	})

	e.scanOnce()

	if len(*emitted) != 1 {
		t.Fatalf("expected 1 opportunity, got %d: %+v", len(*emitted), *emitted)
	}
	opp := (*emitted)[0]
	if opp.Kind != model.KindTri {
		t.Errorf("Kind = %v, want KindTri", opp.Kind)
	}
	if opp.Base != "BTC" {
		t.Errorf("Base = %s, want BTC", opp.Base)
	}
	if opp.NetBps <= 0 {
		t.Errorf("NetBps = %f, want > 0", opp.NetBps)
	}
}

func TestScanOnceFiltersBelowMinGain(t *testing.T) {
	store := bookstore.New(time.Hour)
	seedProfitableTriangle(t, store)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval:  time.Second,
		MinNotional:   d("100"),
		MinTriGainBps: 100000, // unreasonably high bar, nothing should clear it
		Bases:         []string{"BTC"},
		PathCacheTTL:  time.Minute,
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected no opportunities, got %+v", *emitted)
	}
}

func TestScanOnceSkipsBaseNotConfigured(t *testing.T) {
	store := bookstore.New(time.Hour)
	seedProfitableTriangle(t, store)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval:  time.Second,
		MinNotional:   d("100"),
		MinTriGainBps: 1,
		Bases:         []string{"XRP"},
		PathCacheTTL:  time.Minute,
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected no opportunities for unconfigured base, got %+v", *emitted)
	}
}

func TestScanOnceRespectsExcludeQuotes(t *testing.T) {
	store := bookstore.New(time.Hour)
	seedProfitableTriangle(t, store)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval:  time.Second,
		MinNotional:   d("100"),
		MinTriGainBps: 1,
		Bases:         []string{"BTC"},
		ExcludeQuotes: map[string]struct{}{"ETH": {}},
		PathCacheTTL:  time.Minute,
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected triangle through excluded quote to be skipped, got %+v", *emitted)
	}
}

func TestPathsForReusesCacheUntilTopologyChanges(t *testing.T) {
	store := bookstore.New(time.Hour)
	seedProfitableTriangle(t, store)

	e, _ := newTestEngine(t, store, Config{
		MinNotional:   d("100"),
		MinTriGainBps: 1,
		Bases:         []string{"BTC"},
		PathCacheTTL:  time.Minute,
	})

	graph := BuildGraph(store, model.VenueBinance, e.cfg.MinNotional)
	first := e.pathsFor(model.VenueBinance, graph)
	if len(first) == 0 {
		t.Fatal("expected at least one enumerated path")
	}

	second := e.pathsFor(model.VenueBinance, graph)
	if len(second) != len(first) {
		t.Fatalf("expected cached paths to be reused, got different lengths %d vs %d", len(first), len(second))
	}

	putBook(t, store, model.VenueBinance, "SOL", "USDT",
		[]model.Level{{Price: d("150"), Size: d("100")}},
		[]model.Level{{Price: d("150.1"), Size: d("100")}},
	)
	graph2 := BuildGraph(store, model.VenueBinance, e.cfg.MinNotional)
	third := e.pathsFor(model.VenueBinance, graph2)

	for _, p := range third {
		if p.x == "SOL" || p.y == "SOL" {
			t.Fatal("SOL has no edge back to BTC, should not appear in a closed triangle")
		}
	}
}

func TestEnumeratePathsSkipsBaseOverSafetyBound(t *testing.T) {
	store := bookstore.New(time.Hour)
	for i := 0; i < defaultNeighborSafetyBound+1; i++ {
		quote := "Q" + fmt.Sprintf("%04d", i)
		putBook(t, store, model.VenueBinance, "BTC", quote,
			[]model.Level{{Price: d("10"), Size: d("100")}},
			[]model.Level{{Price: d("10.1"), Size: d("100")}},
		)
	}

	graph := BuildGraph(store, model.VenueBinance, d("100"))
	log := logrus.NewEntry(logrus.New())
	paths := enumeratePaths(graph, []string{"BTC"}, nil, log)

	if len(paths) != 0 {
		t.Fatalf("expected no paths once neighbor safety bound is exceeded, got %d", len(paths))
	}
}

func TestBetterTriTieBreaksOnDepth(t *testing.T) {
	a := scoredOpportunity{opp: model.Opportunity{NetBps: 10}, depthUsed: 5}
	b := scoredOpportunity{opp: model.Opportunity{NetBps: 10}, depthUsed: 3}

	if betterTri(a, b) {
		t.Error("expected b (lower depth) to win tie on equal NetBps")
	}
	if !betterTri(b, a) {
		t.Error("expected b to be reported better than a")
	}

	c := scoredOpportunity{opp: model.Opportunity{NetBps: 20}, depthUsed: 100}
	if !betterTri(c, b) {
		t.Error("expected higher NetBps to win regardless of depth")
	}
}
