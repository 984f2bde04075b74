package cross

import (
	"testing"
	"time"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/fees"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func putBook(t *testing.T, store *bookstore.Store, venue model.Venue, pair model.Pair, bids, asks []model.Level) {
	t.Helper()
	ok := store.Put(model.BookSnapshot{
		Venue:   venue,
		Pair:    pair,
		Bids:    bids,
		Asks:    asks,
		TsLocal: time.Now(),
	})
	if !ok {
		t.Fatalf("store.Put rejected snapshot for %s on %s", pair, venue)
	}
}

func newTestEngine(t *testing.T, store *bookstore.Store, cfg Config) (*Engine, *[]model.Opportunity) {
	t.Helper()
	var emitted []model.Opportunity
	log := logrus.NewEntry(logrus.New())
	e := New(cfg, store, symbols.NewRegistry(), fees.NewTable(), log, func(o model.Opportunity) {
		emitted = append(emitted, o)
	})
	return e, &emitted
}

func TestScanOnceEmitsProfitableCrossSpread(t *testing.T) {
	store := bookstore.New(time.Hour)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}

	putBook(t, store, model.VenueBinance, pair,
		[]model.Level{{Price: d("60000"), Size: d("10")}},
		[]model.Level{{Price: d("60010"), Size: d("10")}},
	)
	putBook(t, store, model.VenueBybit, pair,
		[]model.Level{{Price: d("60500"), Size: d("10")}},
		[]model.Level{{Price: d("60510"), Size: d("10")}},
	)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval: time.Second,
		MinNotional:  d("100"),
		MinSpreadBps: 1,
	})

	e.scanOnce()

	if len(*emitted) != 1 {
		t.Fatalf("expected 1 opportunity, got %d: %+v", len(*emitted), *emitted)
	}
	opp := (*emitted)[0]
	if opp.Kind != model.KindCross {
		t.Errorf("Kind = %v, want KindCross", opp.Kind)
	}
	if opp.BuyVenue != model.VenueBinance {
		t.Errorf("BuyVenue = %v, want binance (cheaper ask)", opp.BuyVenue)
	}
	if opp.SellVenue != model.VenueBybit {
		t.Errorf("SellVenue = %v, want bybit (higher bid)", opp.SellVenue)
	}
	if opp.NetBps <= 0 {
		t.Errorf("NetBps = %f, want > 0", opp.NetBps)
	}
}

func TestScanOnceFiltersBelowMinSpread(t *testing.T) {
	store := bookstore.New(time.Hour)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}

	putBook(t, store, model.VenueBinance, pair,
		[]model.Level{{Price: d("60000"), Size: d("10")}},
		[]model.Level{{Price: d("60010"), Size: d("10")}},
	)
	putBook(t, store, model.VenueBybit, pair,
		[]model.Level{{Price: d("60011"), Size: d("10")}},
		[]model.Level{{Price: d("60020"), Size: d("10")}},
	)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval: time.Second,
		MinNotional:  d("100"),
		MinSpreadBps: 10000, // unreasonably high bar
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected no opportunities, got %+v", *emitted)
	}
}

func TestScanOnceSkipsSingleVenuePairs(t *testing.T) {
	store := bookstore.New(time.Hour)
	pair := model.Pair{Base: "ETH", Quote: "USDT"}

	putBook(t, store, model.VenueBinance, pair,
		[]model.Level{{Price: d("3000"), Size: d("10")}},
		[]model.Level{{Price: d("3001"), Size: d("10")}},
	)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval: time.Second,
		MinNotional:  d("100"),
		MinSpreadBps: 1,
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected no opportunities for a pair quoted on only one venue, got %+v", *emitted)
	}
}

func TestScanOnceSkipsInsufficientDepth(t *testing.T) {
	store := bookstore.New(time.Hour)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}

	putBook(t, store, model.VenueBinance, pair,
		[]model.Level{{Price: d("60000"), Size: d("0.0001")}},
		[]model.Level{{Price: d("60010"), Size: d("0.0001")}},
	)
	putBook(t, store, model.VenueBybit, pair,
		[]model.Level{{Price: d("60500"), Size: d("0.0001")}},
		[]model.Level{{Price: d("60510"), Size: d("0.0001")}},
	)

	e, emitted := newTestEngine(t, store, Config{
		ScanInterval: time.Second,
		MinNotional:  d("100000"),
		MinSpreadBps: 1,
	})

	e.scanOnce()

	if len(*emitted) != 0 {
		t.Fatalf("expected no opportunities when no level clears min notional, got %+v", *emitted)
	}
}

func TestBetterCrossTieBreakOrder(t *testing.T) {
	a := model.Opportunity{NetBps: 10, FillableNotional: 100, BuyVenue: model.VenueBinance, SellVenue: model.VenueBybit}
	b := model.Opportunity{NetBps: 10, FillableNotional: 200, BuyVenue: model.VenueBinance, SellVenue: model.VenueBybit}

	if betterCross(a, b) {
		t.Error("expected b (higher fillable notional) to win tie on equal NetBps")
	}
	if !betterCross(b, a) {
		t.Error("expected b to be reported better than a")
	}

	c := model.Opportunity{NetBps: 10, FillableNotional: 100, BuyVenue: model.VenueBybit, SellVenue: model.VenueOKX}
	if !betterCross(a, c) {
		t.Error("expected lexicographically smaller BuyVenue to win the final tie-break")
	}

	hi := model.Opportunity{NetBps: 20}
	if !betterCross(hi, b) {
		t.Error("expected higher NetBps to win regardless of other fields")
	}
}
