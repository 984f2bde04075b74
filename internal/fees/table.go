// Package fees implements the Fee Table of spec.md §4.2: a read-mostly
// mapping of (venue, pair?) to maker/taker fee fractions, seeded from known
// public fee schedules and overridable from configuration.
package fees

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"cryptoflow/internal/model"
)

// defaultFees are conservative venue-default fractions (0.001 == 10 bps),
// grounded on the reference implementation's FeeManager.known_fees table.
var defaultFees = map[model.Venue]model.FeeEntry{
	model.VenueBinance: {Maker: 0.0002, Taker: 0.0005},
	model.VenueBybit:   {Maker: 0.0001, Taker: 0.0006},
	model.VenueOKX:     {Maker: 0.0008, Taker: 0.0010},
	model.VenueKucoin:  {Maker: 0.0008, Taker: 0.0010},
	model.VenueMEXC:    {Maker: 0.0000, Taker: 0.0020},
	model.VenueHuobi:   {Maker: 0.0015, Taker: 0.0020},
	model.VenueCointr:  {Maker: 0.0008, Taker: 0.0015}, // no public schedule, conservative fallback
}

// Table is the live fee mapping. Safe for concurrent use; engines call
// Lookup on every scan tick so it is optimized for read concurrency.
type Table struct {
	mu        sync.RWMutex
	venue     map[model.Venue]model.FeeEntry
	venuePair map[model.MarketKey]model.FeeEntry
}

// NewTable returns a Table seeded with defaultFees, which FEE_OVERRIDE_*
// environment variables may then amend via ApplyOverride.
func NewTable() *Table {
	t := &Table{
		venue:     make(map[model.Venue]model.FeeEntry, len(defaultFees)),
		venuePair: make(map[model.MarketKey]model.FeeEntry),
	}
	for v, e := range defaultFees {
		entry := e
		entry.Venue = v
		t.venue[v] = entry
	}
	return t
}

// Lookup resolves fee for a market per spec.md §4.2's order: venue+pair
// override first, then venue default. ok is false when the venue has no
// default fee at all, in which case spec.md §4.1 requires callers to refuse
// to score the market.
func (t *Table) Lookup(key model.MarketKey) (model.FeeEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.venuePair[key]; ok {
		return e, true
	}
	e, ok := t.venue[key.Venue]
	return e, ok
}

// SetVenueDefault installs or replaces a venue's default fee.
func (t *Table) SetVenueDefault(venue model.Venue, maker, taker float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.venue[venue] = model.FeeEntry{Venue: venue, Maker: maker, Taker: taker}
}

// SetPairOverride installs or replaces a (venue, pair) specific fee.
func (t *Table) SetPairOverride(venue model.Venue, pair model.Pair, maker, taker float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.venuePair[model.MarketKey{Venue: venue, Pair: pair}] = model.FeeEntry{
		Venue: venue, Pair: pair, Maker: maker, Taker: taker,
	}
}

// overrideVarPattern matches FEE_OVERRIDE_<VENUE>_(MAKER|TAKER) and the
// optional pair form FEE_OVERRIDE_<VENUE>_<BASE>_<QUOTE>_(MAKER|TAKER).
var overrideVarPattern = regexp.MustCompile(`^FEE_OVERRIDE_([A-Z0-9]+)(?:_([A-Z0-9]+)_([A-Z0-9]+))?_(MAKER|TAKER)$`)

// ApplyOverride parses one FEE_OVERRIDE_* environment variable name/value
// pair per spec.md §4.2 and applies it. It returns an error (config fault,
// see internal/faults) if name looks like a fee override but the value does
// not parse as a float, or the venue token is not one of the closed venue
// set.
func (t *Table) ApplyOverride(name, value string) (applied bool, err error) {
	m := overrideVarPattern.FindStringSubmatch(name)
	if m == nil {
		return false, nil
	}
	venue := model.Venue(strings.ToLower(m[1]))
	if !venue.Valid() {
		return false, fmt.Errorf("fee override %s: unknown venue %q", name, m[1])
	}
	frac, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false, fmt.Errorf("fee override %s: invalid fraction %q: %w", name, value, err)
	}

	isMaker := m[4] == "MAKER"
	hasPair := m[2] != "" && m[3] != ""

	if hasPair {
		pair := model.Pair{Base: m[2], Quote: m[3]}
		key := model.MarketKey{Venue: venue, Pair: pair}
		t.mu.Lock()
		entry := t.venuePair[key]
		entry.Venue, entry.Pair = venue, pair
		if isMaker {
			entry.Maker = frac
		} else {
			entry.Taker = frac
		}
		t.venuePair[key] = entry
		t.mu.Unlock()
		return true, nil
	}

	t.mu.Lock()
	entry := t.venue[venue]
	entry.Venue = venue
	if isMaker {
		entry.Maker = frac
	} else {
		entry.Taker = frac
	}
	t.venue[venue] = entry
	t.mu.Unlock()
	return true, nil
}

// ApplyOverridesFromEnviron scans a list of "KEY=VALUE" strings (as returned
// by os.Environ) for FEE_OVERRIDE_* entries and applies each, matching the
// reference implementation's Config.get_fee_overrides environment scan.
func (t *Table) ApplyOverridesFromEnviron(environ []string) error {
	for _, kv := range environ {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		name, value := kv[:idx], kv[idx+1:]
		if !strings.HasPrefix(name, "FEE_OVERRIDE_") {
			continue
		}
		if _, err := t.ApplyOverride(name, value); err != nil {
			return err
		}
	}
	return nil
}
