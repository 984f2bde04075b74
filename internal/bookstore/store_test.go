package bookstore

import (
	"testing"
	"time"

	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
)

func validSnapshot(venue model.Venue, pair model.Pair) model.BookSnapshot {
	return model.BookSnapshot{
		Venue: venue,
		Pair:  pair,
		Bids: []model.Level{
			{Price: decimal.RequireFromString("100"), Size: decimal.RequireFromString("1")},
			{Price: decimal.RequireFromString("99"), Size: decimal.RequireFromString("1")},
		},
		Asks: []model.Level{
			{Price: decimal.RequireFromString("101"), Size: decimal.RequireFromString("1")},
			{Price: decimal.RequireFromString("102"), Size: decimal.RequireFromString("1")},
		},
		TsLocal: time.Now(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(5 * time.Second)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}
	snap := validSnapshot(model.VenueBinance, pair)

	if !s.Put(snap) {
		t.Fatalf("expected valid snapshot to be accepted")
	}

	got, ok := s.Get(model.VenueBinance, pair)
	if !ok {
		t.Fatalf("expected snapshot present")
	}
	if len(got.Bids) != 2 || len(got.Asks) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestPutRejectsCrossedBook(t *testing.T) {
	s := New(5 * time.Second)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}
	snap := validSnapshot(model.VenueBinance, pair)
	snap.Bids[0].Price = decimal.RequireFromString("200") // now crosses asks

	if s.Put(snap) {
		t.Fatalf("expected crossed book to be rejected")
	}
	if _, ok := s.Get(model.VenueBinance, pair); ok {
		t.Fatalf("rejected snapshot should not be stored")
	}
}

func TestPutRejectsNonMonotonicBids(t *testing.T) {
	s := New(5 * time.Second)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}
	snap := validSnapshot(model.VenueBinance, pair)
	snap.Bids[0], snap.Bids[1] = snap.Bids[1], snap.Bids[0] // now ascending, not descending

	if s.Put(snap) {
		t.Fatalf("expected non-monotonic bids to be rejected")
	}
}

func TestGetTreatsStaleSnapshotAsAbsent(t *testing.T) {
	s := New(10 * time.Millisecond)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}
	snap := validSnapshot(model.VenueBinance, pair)
	snap.TsLocal = time.Now().Add(-time.Second)

	s.Put(snap)
	time.Sleep(20 * time.Millisecond)

	if _, ok := s.Get(model.VenueBinance, pair); ok {
		t.Fatalf("expected stale snapshot to be treated as absent")
	}
}

func TestGetUnknownMarket(t *testing.T) {
	s := New(time.Second)
	if _, ok := s.Get(model.VenueBinance, model.Pair{Base: "ZZZ", Quote: "USDT"}); ok {
		t.Fatalf("expected unknown market to be absent")
	}
}

func TestPairsOfAndVenuesOf(t *testing.T) {
	s := New(time.Second)
	btcusdt := model.Pair{Base: "BTC", Quote: "USDT"}
	ethusdt := model.Pair{Base: "ETH", Quote: "USDT"}

	s.Put(validSnapshot(model.VenueBinance, btcusdt))
	s.Put(validSnapshot(model.VenueBinance, ethusdt))
	s.Put(validSnapshot(model.VenueBybit, btcusdt))

	pairs := s.PairsOf(model.VenueBinance)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs for binance, got %d", len(pairs))
	}

	venues := s.VenuesOf(btcusdt)
	if len(venues) != 2 {
		t.Fatalf("expected 2 venues for BTC/USDT, got %d", len(venues))
	}
}

func TestPutReplacesAtomically(t *testing.T) {
	s := New(time.Second)
	pair := model.Pair{Base: "BTC", Quote: "USDT"}
	snap1 := validSnapshot(model.VenueBinance, pair)
	s.Put(snap1)

	snap2 := validSnapshot(model.VenueBinance, pair)
	snap2.Bids[0].Price = decimal.RequireFromString("100.5")
	s.Put(snap2)

	got, _ := s.Get(model.VenueBinance, pair)
	if !got.Bids[0].Price.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("expected replaced snapshot, got %+v", got.Bids[0])
	}
}
