package model

import "time"

// OpportunityKind distinguishes the two detection classes this system emits.
type OpportunityKind string

const (
	KindCross OpportunityKind = "cross"
	KindTri   OpportunityKind = "tri"
)

// Leg is one edge of a triangular cycle: trade Pair on the given Side
// ("buy" or "sell") at Price, using the venue's taker fee.
type Leg struct {
	Pair  Pair
	Side  string
	Price float64
}

// Opportunity is the detection result handed to the Emitter. Exactly one of
// the cross-only or tri-only fields is populated, selected by Kind.
type Opportunity struct {
	Kind OpportunityKind
	ID   string

	// Cross fields.
	Pair             Pair
	BuyVenue         Venue
	SellVenue        Venue
	BuyVWAP          float64
	SellVWAP         float64
	FillableNotional float64

	// Tri fields.
	Venue Venue
	Legs  [3]Leg
	Base  string

	// Shared.
	Notional   float64
	GrossBps   float64
	NetBps     float64
	TDetected  time.Time
}

// DedupeKey returns the deduplication identity described in spec.md §4.8:
// cross opportunities key on (pair, buy venue, sell venue, bucketed bps);
// tri opportunities key on (venue, sorted leg pairs, base, bucketed bps).
func (o Opportunity) DedupeKey(bucketWidth float64) string {
	bucket := bucketBps(o.NetBps, bucketWidth)
	switch o.Kind {
	case KindCross:
		return string(o.Kind) + "|" + o.Pair.String() + "|" + string(o.BuyVenue) + "|" + string(o.SellVenue) + "|" + bucket
	case KindTri:
		pairs := []string{o.Legs[0].Pair.String(), o.Legs[1].Pair.String(), o.Legs[2].Pair.String()}
		sortThree(pairs)
		key := string(o.Kind) + "|" + string(o.Venue) + "|" + o.Base + "|" + bucket
		for _, p := range pairs {
			key += "|" + p
		}
		return key
	default:
		return string(o.Kind)
	}
}

func bucketBps(netBps, width float64) string {
	if width <= 0 {
		width = 1
	}
	b := float64(int64(netBps/width)) * width
	return floatKey(b)
}

// floatKey renders a float with fixed precision so equal buckets produce
// identical map keys regardless of binary rounding noise.
func floatKey(f float64) string {
	// 2 decimal places is ample for a bps bucket boundary.
	scaled := int64(f * 100)
	return itoa(scaled)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func sortThree(s []string) {
	if s[0] > s[1] {
		s[0], s[1] = s[1], s[0]
	}
	if s[1] > s[2] {
		s[1], s[2] = s[2], s[1]
	}
	if s[0] > s[1] {
		s[0], s[1] = s[1], s[0]
	}
}
