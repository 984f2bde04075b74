package cointr

import (
	"testing"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"

	"github.com/shopspring/decimal"
)

func TestPairWantedEmptyUniverseAllowsAll(t *testing.T) {
	c := New(&config.Config{}, symbols.NewRegistry())
	if !c.pairWanted(model.Pair{Base: "BTC", Quote: "USDT"}) {
		t.Error("expected empty SymbolUniverse to allow any pair")
	}
}

func TestVenueAndState(t *testing.T) {
	c := New(&config.Config{}, symbols.NewRegistry())
	if c.Venue() != model.VenueCointr {
		t.Errorf("Venue() = %v, want cointr", c.Venue())
	}
	if c.State() != connector.StateInit {
		t.Errorf("State() = %v, want init", c.State())
	}
}

func TestApplyCointrLevels(t *testing.T) {
	book := connector.NewShadowBook(model.VenueCointr, model.Pair{Base: "BTC", Quote: "USDT"}, 10)
	applyCointrLevels(book, connector.SideAsk, [][]string{{"300.1", "0.5"}})

	snap := book.Snapshot()
	if len(snap.Asks) != 1 || !snap.Asks[0].Price.Equal(decimal.RequireFromString("300.1")) {
		t.Fatalf("unexpected snapshot asks: %+v", snap.Asks)
	}
}
