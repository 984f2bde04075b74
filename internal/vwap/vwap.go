// Package vwap implements the depth-aware volume-weighted average price cost
// model of spec.md §4.5: given one side of a book and a target notional,
// compute the average fill price and the notional actually filled by
// walking levels nearest-to-touch first. Pure functions, no I/O.
package vwap

import (
	"cryptoflow/internal/model"

	"github.com/shopspring/decimal"
)

// Result is the outcome of walking a book side to fill a target notional.
type Result struct {
	VWAP             decimal.Decimal
	FilledQty        decimal.Decimal
	FillableNotional decimal.Decimal
}

// Fill walks levels (nearest-to-touch first, i.e. bids descending / asks
// ascending as already ordered by the Book Store) accumulating quantity and
// notional until the target is reached or the side is exhausted. ok is
// false when the side cannot fill targetNotional at all ("unfillable").
func Fill(levels []model.Level, targetNotional decimal.Decimal) (res Result, ok bool) {
	if targetNotional.Sign() <= 0 {
		return Result{}, false
	}

	var filledNotional, filledQty, vwapPrice decimal.Decimal

	for _, lvl := range levels {
		levelNotional := lvl.Price.Mul(lvl.Size)
		remaining := targetNotional.Sub(filledNotional)

		if levelNotional.GreaterThanOrEqual(remaining) {
			// This level alone covers the remainder; take a partial slice.
			// The VWAP is N·p / (Q·p + remaining), the same ratio as
			// N / (Q + remaining/p) without dividing before the sum, so a
			// fill inside one level prices at exactly that level's price.
			vwapPrice = targetNotional.Mul(lvl.Price).Div(filledQty.Mul(lvl.Price).Add(remaining))
			partialQty := remaining.Div(lvl.Price)
			filledQty = filledQty.Add(partialQty)
			filledNotional = filledNotional.Add(remaining)
			break
		}

		filledQty = filledQty.Add(lvl.Size)
		filledNotional = filledNotional.Add(levelNotional)
	}

	if filledNotional.LessThan(targetNotional) || filledQty.Sign() <= 0 {
		return Result{}, false
	}

	fillable := decimal.Min(filledNotional, targetNotional)

	return Result{
		VWAP:             vwapPrice,
		FilledQty:        filledQty,
		FillableNotional: fillable,
	}, true
}

// SufficientDepth reports whether the side's total notional (across at most
// maxLevels) can cover minNotional, without computing a full VWAP. Used by
// callers that only need a cheap feasibility check.
func SufficientDepth(levels []model.Level, minNotional decimal.Decimal, maxLevels int) bool {
	if len(levels) == 0 {
		return false
	}
	if maxLevels <= 0 || maxLevels > len(levels) {
		maxLevels = len(levels)
	}
	var total decimal.Decimal
	for _, lvl := range levels[:maxLevels] {
		total = total.Add(lvl.Price.Mul(lvl.Size))
		if total.GreaterThanOrEqual(minNotional) {
			return true
		}
	}
	return false
}
