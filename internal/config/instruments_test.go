package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStaticInstruments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	content := `
instruments:
  - venue: binance
    native_symbol: BTCUSDT
    base: BTC
    quote: USDT
    price_precision: 2
    size_precision: 6
    min_notional: 10
  - venue: okx
    native_symbol: ETH-USDT
    base: ETH
    quote: USDT
    price_precision: 2
    size_precision: 4
    min_notional: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	markets, err := LoadStaticInstruments(path)
	if err != nil {
		t.Fatalf("LoadStaticInstruments() error = %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}
	if markets[0].NativeSymbol != "BTCUSDT" || markets[0].Pair.Base != "BTC" {
		t.Errorf("markets[0] = %+v", markets[0])
	}
	if !markets[1].Active {
		t.Error("expected loaded markets to be Active")
	}
}

func TestLoadStaticInstrumentsUnknownVenue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	content := `
instruments:
  - venue: nosuchvenue
    native_symbol: BTCUSDT
    base: BTC
    quote: USDT
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadStaticInstruments(path); err == nil {
		t.Fatal("expected error for unknown venue")
	}
}

func TestLoadStaticInstrumentsMissingFile(t *testing.T) {
	if _, err := LoadStaticInstruments("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
