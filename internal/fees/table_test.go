package fees

import (
	"testing"

	"cryptoflow/internal/model"
)

func TestLookupVenueDefault(t *testing.T) {
	tbl := NewTable()
	e, ok := tbl.Lookup(model.MarketKey{Venue: model.VenueBinance, Pair: model.Pair{Base: "BTC", Quote: "USDT"}})
	if !ok {
		t.Fatalf("expected default fee for binance")
	}
	if e.Taker != 0.0005 {
		t.Fatalf("got taker=%v", e.Taker)
	}
}

func TestLookupUnknownVenue(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup(model.MarketKey{Venue: model.Venue("unknown"), Pair: model.Pair{Base: "BTC", Quote: "USDT"}})
	if ok {
		t.Fatalf("expected no fee entry for unknown venue")
	}
}

func TestApplyOverrideVenueLevel(t *testing.T) {
	tbl := NewTable()
	applied, err := tbl.ApplyOverride("FEE_OVERRIDE_BINANCE_TAKER", "0.0009")
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v", applied, err)
	}
	e, ok := tbl.Lookup(model.MarketKey{Venue: model.VenueBinance, Pair: model.Pair{Base: "ETH", Quote: "USDT"}})
	if !ok || e.Taker != 0.0009 {
		t.Fatalf("got %+v ok=%v", e, ok)
	}
}

func TestApplyOverridePairLevel(t *testing.T) {
	tbl := NewTable()
	applied, err := tbl.ApplyOverride("FEE_OVERRIDE_BINANCE_BTC_USDT_MAKER", "0.0001")
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v", applied, err)
	}
	key := model.MarketKey{Venue: model.VenueBinance, Pair: model.Pair{Base: "BTC", Quote: "USDT"}}
	e, ok := tbl.Lookup(key)
	if !ok || e.Maker != 0.0001 {
		t.Fatalf("got %+v ok=%v", e, ok)
	}
	// A different pair on the same venue should be unaffected.
	other, ok := tbl.Lookup(model.MarketKey{Venue: model.VenueBinance, Pair: model.Pair{Base: "ETH", Quote: "USDT"}})
	if !ok || other.Maker == 0.0001 {
		t.Fatalf("override leaked to other pair: %+v", other)
	}
}

func TestApplyOverrideUnknownVenueErrors(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.ApplyOverride("FEE_OVERRIDE_NOTAREALVENUE_TAKER", "0.001")
	if err == nil {
		t.Fatalf("expected error for unknown venue")
	}
}

func TestApplyOverrideBadFractionErrors(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.ApplyOverride("FEE_OVERRIDE_BINANCE_TAKER", "not-a-number")
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplyOverrideIgnoresUnrelatedVars(t *testing.T) {
	tbl := NewTable()
	applied, err := tbl.ApplyOverride("LOG_LEVEL", "debug")
	if err != nil || applied {
		t.Fatalf("expected no-op for unrelated var, got applied=%v err=%v", applied, err)
	}
}

func TestApplyOverridesFromEnviron(t *testing.T) {
	tbl := NewTable()
	err := tbl.ApplyOverridesFromEnviron([]string{
		"FEE_OVERRIDE_OKX_TAKER=0.0011",
		"PATH=/usr/bin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, ok := tbl.Lookup(model.MarketKey{Venue: model.VenueOKX, Pair: model.Pair{Base: "BTC", Quote: "USDT"}})
	if !ok || e.Taker != 0.0011 {
		t.Fatalf("got %+v ok=%v", e, ok)
	}
}
