package symbols

import (
	"testing"

	"cryptoflow/internal/model"
)

func TestCanonicalizeAlias(t *testing.T) {
	r := NewRegistry()
	pair, ok := r.Canonicalize(model.VenueBinance, "1000PEPEUSDT")
	if !ok {
		t.Fatalf("expected alias match")
	}
	if pair.Base != "PEPE" || pair.Quote != "USDT" {
		t.Fatalf("got %+v", pair)
	}
}

func TestCanonicalizeQuoteSplit(t *testing.T) {
	r := NewRegistry()
	pair, ok := r.Canonicalize(model.VenueBinance, "BTCUSDT")
	if !ok || pair.Base != "BTC" || pair.Quote != "USDT" {
		t.Fatalf("got %+v ok=%v", pair, ok)
	}
}

func TestCanonicalizeKucoinCleanup(t *testing.T) {
	r := NewRegistry()
	pair, ok := r.Canonicalize(model.VenueKucoin, "XBT-USDTM")
	if !ok {
		t.Fatalf("expected match")
	}
	if pair.Base != "BTC" || pair.Quote != "USDT" {
		t.Fatalf("got %+v", pair)
	}
}

func TestCanonicalizeOKXSwapSuffix(t *testing.T) {
	r := NewRegistry()
	pair, ok := r.Canonicalize(model.VenueOKX, "ETH-USDT-SWAP")
	if !ok || pair.Base != "ETH" || pair.Quote != "USDT" {
		t.Fatalf("got %+v ok=%v", pair, ok)
	}
}

func TestSplitQuotePrefersLongestSuffix(t *testing.T) {
	pair, ok := SplitQuote("BTCUSDT")
	if !ok || pair.Quote != "USDT" {
		t.Fatalf("expected USDT quote, got %+v", pair)
	}
}

func TestSplitQuoteUnparseable(t *testing.T) {
	if _, ok := SplitQuote("ZZZ"); ok {
		t.Fatalf("expected unparseable symbol to fail")
	}
}

func TestRegistryUpsertAndLookup(t *testing.T) {
	r := NewRegistry()
	key := model.MarketKey{Venue: model.VenueBinance, Pair: model.Pair{Base: "BTC", Quote: "USDT"}}
	r.Upsert(model.Market{Venue: model.VenueBinance, Pair: key.Pair, NativeSymbol: "BTCUSDT", Active: true})

	m, ok := r.Market(key)
	if !ok || m.NativeSymbol != "BTCUSDT" {
		t.Fatalf("got %+v ok=%v", m, ok)
	}

	native, ok := r.Native(key)
	if !ok || native != "BTCUSDT" {
		t.Fatalf("got native=%q ok=%v", native, ok)
	}

	markets := r.MarketsFor(model.VenueBinance)
	if len(markets) != 1 {
		t.Fatalf("expected 1 market, got %d", len(markets))
	}
}
