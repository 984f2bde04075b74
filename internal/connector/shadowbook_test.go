package connector

import (
	"testing"

	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestShadowBookApplyAndSnapshot(t *testing.T) {
	book := NewShadowBook(model.VenueBinance, model.Pair{Base: "BTC", Quote: "USDT"}, 5)

	book.ApplyLevel(SideBid, d("100"), d("1"), 1)
	book.ApplyLevel(SideBid, d("99"), d("2"), 2)
	book.ApplyLevel(SideAsk, d("101"), d("1"), 3)
	book.ApplyLevel(SideAsk, d("102"), d("2"), 4)

	snap := book.Snapshot()
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("got %d bids, %d asks, want 2/2", len(snap.Bids), len(snap.Asks))
	}
	if !snap.Bids[0].Price.Equal(d("100")) {
		t.Errorf("bids[0].Price = %v, want 100 (descending)", snap.Bids[0].Price)
	}
	if !snap.Asks[0].Price.Equal(d("101")) {
		t.Errorf("asks[0].Price = %v, want 101 (ascending)", snap.Asks[0].Price)
	}
	if !snap.Valid() {
		t.Error("expected valid snapshot")
	}
}

func TestShadowBookRemoveLevel(t *testing.T) {
	book := NewShadowBook(model.VenueBinance, model.Pair{Base: "BTC", Quote: "USDT"}, 5)
	book.ApplyLevel(SideBid, d("100"), d("1"), 1)
	book.ApplyLevel(SideBid, d("100"), d("0"), 2)

	snap := book.Snapshot()
	if len(snap.Bids) != 0 {
		t.Errorf("expected level removed, got %d bids", len(snap.Bids))
	}
}

func TestShadowBookDepthBound(t *testing.T) {
	book := NewShadowBook(model.VenueBinance, model.Pair{Base: "BTC", Quote: "USDT"}, 2)
	for i := 0; i < 5; i++ {
		book.ApplyLevel(SideBid, decimal.NewFromInt(int64(100-i)), d("1"), int64(i+1))
	}
	snap := book.Snapshot()
	if len(snap.Bids) != 2 {
		t.Errorf("got %d bids, want depth-bounded 2", len(snap.Bids))
	}
}

func TestShadowBookReset(t *testing.T) {
	book := NewShadowBook(model.VenueBinance, model.Pair{Base: "BTC", Quote: "USDT"}, 5)
	book.ApplyLevel(SideBid, d("100"), d("1"), 1)
	book.Reset()
	snap := book.Snapshot()
	if len(snap.Bids) != 0 {
		t.Error("expected empty book after Reset")
	}
}
