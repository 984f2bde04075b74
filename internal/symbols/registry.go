// Package symbols canonicalizes the native instrument symbols each venue
// reports into the (base, quote) model.Pair form the engines compare across
// venues, and converts back when a connector needs the native wire symbol.
// Grounded on the teacher's ToBinance/NormalizeKucoinSymbol cleanup rules,
// generalized to a per-venue alias table plus a quote-suffix fallback.
package symbols

import (
	"strings"
	"sync"

	"cryptoflow/internal/model"
)

// quoteSuffixes is tried longest-first so e.g. "USDT" is preferred over "USD"
// when a symbol ends in both. Matches the fallback list in the reference
// Python implementation's parse_symbol.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "BTC", "ETH", "BNB", "EUR"}

// Registry holds the discovered markets and the symbol aliases needed to
// canonicalize each venue's native wire format. One Registry is shared by
// all connectors and engines; it is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	markets map[model.MarketKey]model.Market
	aliases map[model.Venue]map[string]model.Pair // native -> canonical, explicit overrides
	native  map[model.MarketKey]string            // canonical -> native, filled by Upsert
}

// NewRegistry returns an empty Registry seeded with the known per-venue
// symbol aliases that cannot be derived by pattern (renamed/rebased tokens
// like 1000BONK, or venue-specific futures-style suffixes reused for spot).
func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[model.MarketKey]model.Market),
		aliases: defaultAliases(),
		native:  make(map[model.MarketKey]string),
	}
}

// defaultAliases is the explicit native->canonical override table. Grounded
// on the teacher's symbols.ToBinance switch and the reference implementation's
// SymbolMapper.symbol_mappings.
func defaultAliases() map[model.Venue]map[string]model.Pair {
	return map[model.Venue]map[string]model.Pair{
		model.VenueBinance: {
			"1000BONKUSDT": {Base: "BONK", Quote: "USDT"},
			"1000PEPEUSDT": {Base: "PEPE", Quote: "USDT"},
			"1000SHIBUSDT": {Base: "SHIB", Quote: "USDT"},
		},
		model.VenueBybit: {
			"1000BONKUSDT": {Base: "BONK", Quote: "USDT"},
			"1000PEPEUSDT": {Base: "PEPE", Quote: "USDT"},
			"SHIB1000USDT": {Base: "SHIB", Quote: "USDT"},
		},
	}
}

// Upsert registers or refreshes a discovered Market, recording both the
// canonical and native-symbol mappings for later lookup.
func (r *Registry) Upsert(m model.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.Key()
	r.markets[key] = m
	r.native[key] = m.NativeSymbol
}

// Market returns the discovered Market for a (venue, pair), if known.
func (r *Registry) Market(key model.MarketKey) (model.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[key]
	return m, ok
}

// MarketsFor returns every active Market known for a venue.
func (r *Registry) MarketsFor(venue model.Venue) []model.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Market, 0, len(r.markets))
	for k, m := range r.markets {
		if k.Venue == venue && m.Active {
			out = append(out, m)
		}
	}
	return out
}

// Canonicalize converts a venue's native wire symbol into a model.Pair,
// consulting the explicit alias table first and falling back to quote-suffix
// splitting (longest suffix wins).
func (r *Registry) Canonicalize(venue model.Venue, native string) (model.Pair, bool) {
	r.mu.RLock()
	if venueAliases, ok := r.aliases[venue]; ok {
		if p, ok := venueAliases[native]; ok {
			r.mu.RUnlock()
			return p, true
		}
	}
	r.mu.RUnlock()

	sym := cleanup(venue, native)
	return SplitQuote(sym)
}

// Native returns the wire symbol recorded by Upsert for a (venue, pair)
// instrument. ok is false when none was recorded; no symbol is synthesized.
func (r *Registry) Native(key model.MarketKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.native[key]; ok {
		return s, true
	}
	return "", false
}

// cleanup strips venue-specific punctuation/suffixes the way the connector's
// discovery step would before an alias or quote-suffix lookup is attempted.
func cleanup(venue model.Venue, sym string) string {
	sym = strings.ToUpper(sym)
	switch venue {
	case model.VenueKucoin:
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	case model.VenueOKX:
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	default:
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.ReplaceAll(sym, "_", "")
		sym = strings.ReplaceAll(sym, "/", "")
	}
	return sym
}

// SplitQuote splits a concatenated symbol like "BTCUSDT" into (BTC, USDT),
// trying the longest known quote suffix first.
func SplitQuote(sym string) (model.Pair, bool) {
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			base := sym[:len(sym)-len(q)]
			return model.Pair{Base: base, Quote: q}, true
		}
	}
	return model.Pair{}, false
}
