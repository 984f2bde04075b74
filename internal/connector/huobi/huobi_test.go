package huobi

import (
	"testing"

	"cryptoflow/internal/config"
	"cryptoflow/internal/connector"
	"cryptoflow/internal/model"
	"cryptoflow/internal/symbols"
)

func TestPairWantedEmptyUniverseAllowsAll(t *testing.T) {
	c := New(&config.Config{}, symbols.NewRegistry())
	if !c.pairWanted(model.Pair{Base: "BTC", Quote: "USDT"}) {
		t.Error("expected empty SymbolUniverse to allow any pair")
	}
}

func TestVenueAndState(t *testing.T) {
	c := New(&config.Config{}, symbols.NewRegistry())
	if c.Venue() != model.VenueHuobi {
		t.Errorf("Venue() = %v, want huobi", c.Venue())
	}
	if c.State() != connector.StateInit {
		t.Errorf("State() = %v, want init", c.State())
	}
}

func TestSymbolFromChannel(t *testing.T) {
	if got := symbolFromChannel("market.btcusdt.depth.step0"); got != "btcusdt" {
		t.Errorf("symbolFromChannel() = %q, want btcusdt", got)
	}
	if got := symbolFromChannel("bogus"); got != "" {
		t.Errorf("symbolFromChannel(bogus) = %q, want empty", got)
	}
}

func TestApplyHuobiLevels(t *testing.T) {
	book := connector.NewShadowBook(model.VenueHuobi, model.Pair{Base: "BTC", Quote: "USDT"}, 10)
	applyHuobiLevels(book, connector.SideBid, [][2]float64{{100.5, 2}})

	snap := book.Snapshot()
	if len(snap.Bids) != 1 {
		t.Fatalf("expected 1 bid level, got %d", len(snap.Bids))
	}
}
