package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"cryptoflow/internal/faults"
	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "MIN_SPREAD_BPS", "MIN_TRI_GAIN_BPS", "MIN_NOTIONAL", "SYMBOL_UNIVERSE",
		"TRI_BASES", "DEPTH_LEVELS", "COALESCE_MS", "CROSS_SCAN_MS", "TRI_SCAN_MS",
		"MAX_STALENESS_MS", "ALERT_COOLDOWN_SEC", "PERSIST_BACKEND")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MinSpreadBps != 25 {
		t.Errorf("MinSpreadBps = %v, want 25", cfg.MinSpreadBps)
	}
	if cfg.MinTriGainBps != 15 {
		t.Errorf("MinTriGainBps = %v, want 15", cfg.MinTriGainBps)
	}
	if !cfg.MinNotional.Equal(decimal.NewFromInt(100)) {
		t.Errorf("MinNotional = %v, want 100", cfg.MinNotional)
	}
	if len(cfg.TriBases) != 3 || cfg.TriBases[0] != "BTC" {
		t.Errorf("TriBases = %v, want [BTC ETH USDT]", cfg.TriBases)
	}
	if cfg.DepthLevels != 20 {
		t.Errorf("DepthLevels = %v, want 20", cfg.DepthLevels)
	}
	if cfg.CoalesceInterval != 100*time.Millisecond {
		t.Errorf("CoalesceInterval = %v, want 100ms", cfg.CoalesceInterval)
	}
	if cfg.TriPathCacheTTL != 300000*time.Millisecond {
		t.Errorf("TriPathCacheTTL = %v, want 300s", cfg.TriPathCacheTTL)
	}
	if cfg.PersistBackend != "file" {
		t.Errorf("PersistBackend = %v, want file", cfg.PersistBackend)
	}
}

func TestLoadSymbolUniverse(t *testing.T) {
	clearEnv(t, "SYMBOL_UNIVERSE")
	os.Setenv("SYMBOL_UNIVERSE", "BTC/USDT, ETH/USDT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []model.Pair{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "USDT"}}
	if len(cfg.SymbolUniverse) != 2 || cfg.SymbolUniverse[0] != want[0] || cfg.SymbolUniverse[1] != want[1] {
		t.Errorf("SymbolUniverse = %v, want %v", cfg.SymbolUniverse, want)
	}
}

func TestLoadSymbolUniverseInvalid(t *testing.T) {
	clearEnv(t, "SYMBOL_UNIVERSE")
	os.Setenv("SYMBOL_UNIVERSE", "BTCUSDT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed SYMBOL_UNIVERSE entry")
	}
	if !errors.Is(err, faults.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestLoadInvalidNumber(t *testing.T) {
	clearEnv(t, "MIN_SPREAD_BPS")
	os.Setenv("MIN_SPREAD_BPS", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for non-numeric MIN_SPREAD_BPS")
	}
	if !errors.Is(err, faults.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestLoadS3RequiresBucket(t *testing.T) {
	clearEnv(t, "PERSIST_BACKEND", "PERSIST_BUCKET")
	os.Setenv("PERSIST_BACKEND", "s3")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when PERSIST_BACKEND=s3 without PERSIST_BUCKET")
	}
}

func TestVenueEnabled(t *testing.T) {
	cfg := &Config{
		IncludeExchanges: map[model.Venue]struct{}{model.VenueBinance: {}},
		ExcludeExchanges: map[model.Venue]struct{}{},
	}
	if !cfg.VenueEnabled(model.VenueBinance) {
		t.Error("expected binance enabled via include list")
	}
	if cfg.VenueEnabled(model.VenueBybit) {
		t.Error("expected bybit disabled, not in include list")
	}

	cfg2 := &Config{
		IncludeExchanges: map[model.Venue]struct{}{},
		ExcludeExchanges: map[model.Venue]struct{}{model.VenueOKX: {}},
	}
	if cfg2.VenueEnabled(model.VenueOKX) {
		t.Error("expected okx disabled via exclude list")
	}
	if !cfg2.VenueEnabled(model.VenueBinance) {
		t.Error("expected binance enabled, no include list and not excluded")
	}
}

