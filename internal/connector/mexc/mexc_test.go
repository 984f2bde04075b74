package mexc

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
	if c.Venue() != model.VenueMEXC {
		t.Errorf("Venue() = %v, want mexc", c.Venue())
	}
	if c.State() != connector.StateInit {
		t.Errorf("State() = %v, want init", c.State())
	}
}

func TestApplyMexcLevels(t *testing.T) {
	book := connector.NewShadowBook(model.VenueMEXC, model.Pair{Base: "BTC", Quote: "USDT"}, 10)
	applyMexcLevels(book, connector.SideBid, []mexcDepthLevel{{Price: "200.25", Quantity: "1.5"}})

	snap := book.Snapshot()
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(decimal.RequireFromString("200.25")) {
		t.Fatalf("unexpected snapshot bids: %+v", snap.Bids)
	}
}
