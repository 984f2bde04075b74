package model

import "fmt"

// Venue identifies a supported spot exchange. The set is closed; unknown
// values are rejected at the edges (config parsing, connector factory).
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueBybit   Venue = "bybit"
	VenueOKX     Venue = "okx"
	VenueKucoin  Venue = "kucoin"
	VenueMEXC    Venue = "mexc"
	VenueHuobi   Venue = "huobi"
	VenueCointr  Venue = "cointr"
)

// Venues lists every venue this system knows how to connect to.
var Venues = []Venue{VenueBinance, VenueBybit, VenueOKX, VenueKucoin, VenueMEXC, VenueHuobi, VenueCointr}

// Valid reports whether v is one of the closed set of supported venues.
func (v Venue) Valid() bool {
	for _, known := range Venues {
		if v == known {
			return true
		}
	}
	return false
}

// Pair is a canonical (base, quote) trading pair. Equality is structural.
type Pair struct {
	Base  string
	Quote string
}

// String renders the canonical BASE/QUOTE form.
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Empty reports whether the pair was never populated.
func (p Pair) Empty() bool {
	return p.Base == "" && p.Quote == ""
}
