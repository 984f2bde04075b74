// Package tri implements the Tri Engine of spec.md §4.7: for each venue,
// build a directed asset graph from live books, enumerate simple 3-cycles
// rooted at a configured base asset, and emit any cycle whose fee-adjusted
// product clears MIN_TRI_GAIN_BPS.
package tri

import (
	"sort"
	"strings"

	"cryptoflow/internal/bookstore"
	"cryptoflow/internal/model"
	"cryptoflow/internal/vwap"

	"github.com/shopspring/decimal"
)

// Edge is one directed edge of the per-venue asset graph: trading 1 unit of
// the source asset for Rate units of To via Pair. Price is the natural
// quote-per-base execution price (equal to Rate on a sell edge, its
// reciprocal on a buy edge), kept only for opportunity reporting.
type Edge struct {
	To        string
	Pair      model.Pair
	Side      string
	Rate      decimal.Decimal
	Price     decimal.Decimal
	FilledQty decimal.Decimal
}

// Graph is a per-venue directed asset graph built fresh from the current
// book store contents on every scan tick.
type Graph struct {
	adjacency map[string][]Edge
}

// Neighbors returns the edges leaving asset, or nil if asset has none.
func (g *Graph) Neighbors(asset string) []Edge {
	return g.adjacency[asset]
}

// Empty reports whether the graph has no tradable edges at all.
func (g *Graph) Empty() bool {
	return len(g.adjacency) == 0
}

// Edge looks up the live edge from -> to, if one currently exists.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	for _, e := range g.adjacency[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// BuildGraph constructs the directed graph of spec.md §4.7 step 1 for venue:
// each live pair (B, Q) contributes a B->Q edge (sell B at bid, rate =
// bid_vwap(minNotional)) and a Q->B edge (buy B with Q at ask, rate =
// 1/ask_vwap(minNotional)).
func BuildGraph(store *bookstore.Store, venue model.Venue, minNotional decimal.Decimal) *Graph {
	g := &Graph{adjacency: make(map[string][]Edge)}

	for _, pair := range store.PairsOf(venue) {
		book, ok := store.Get(venue, pair)
		if !ok {
			continue
		}

		if bidFill, ok := vwap.Fill(book.Bids, minNotional); ok {
			g.adjacency[pair.Base] = append(g.adjacency[pair.Base], Edge{
				To:        pair.Quote,
				Pair:      pair,
				Side:      "sell",
				Rate:      bidFill.VWAP,
				Price:     bidFill.VWAP,
				FilledQty: bidFill.FilledQty,
			})
		}

		if askFill, ok := vwap.Fill(book.Asks, minNotional); ok && askFill.VWAP.Sign() > 0 {
			g.adjacency[pair.Quote] = append(g.adjacency[pair.Quote], Edge{
				To:        pair.Base,
				Pair:      pair,
				Side:      "buy",
				Rate:      decimal.NewFromInt(1).Div(askFill.VWAP),
				Price:     askFill.VWAP,
				FilledQty: askFill.FilledQty,
			})
		}
	}

	return g
}

// signature is a cheap fingerprint of the graph's topology (which assets
// connect to which, ignoring rates), used to detect when the tri path cache
// must be invalidated because the live market set changed.
func (g *Graph) signature() string {
	assets := make([]string, 0, len(g.adjacency))
	for a := range g.adjacency {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var b strings.Builder
	for _, a := range assets {
		tos := make([]string, 0, len(g.adjacency[a]))
		for _, e := range g.adjacency[a] {
			tos = append(tos, e.To)
		}
		sort.Strings(tos)
		b.WriteString(a)
		b.WriteByte(':')
		b.WriteString(strings.Join(tos, ","))
		b.WriteByte(';')
	}
	return b.String()
}
