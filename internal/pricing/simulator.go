// Package pricing estimates the volume-weighted average price achievable
// for a market order of a given size against a bounded-depth order book.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// DefaultDepth bounds how many levels per side are consulted.
const DefaultDepth = 20

// Quote is the outcome of walking the book for one hypothetical order.
// AvgPrice is total cost over total filled quantity; for a partial fill it
// covers only the filled portion. Sufficient is false when the supplied
// levels could not satisfy the required quantity — callers must treat that
// as "not currently executable at this size", not as an error.
type Quote struct {
	AvgPrice   decimal.Decimal
	FilledQty  decimal.Decimal
	Sufficient bool
}

// Simulate walks the requested side of the book from best to worst,
// accumulating min(levelVolume, remaining) at each level's price, until
// requiredQty is met or maxLevels levels are exhausted. Buys walk asks,
// sells walk bids. maxLevels <= 0 falls back to DefaultDepth.
func Simulate(book domain.OrderBook, side domain.OrderSide, requiredQty decimal.Decimal, maxLevels int) Quote {
	if maxLevels <= 0 {
		maxLevels = DefaultDepth
	}

	levels := book.Asks
	if side == domain.OrderSideSell {
		levels = book.Bids
	}
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}

	if !requiredQty.IsPositive() {
		return Quote{}
	}

	remaining := requiredQty
	filled := decimal.Zero
	cost := decimal.Zero

	for _, lvl := range levels {
		if !lvl.Volume.IsPositive() || !lvl.Price.IsPositive() {
			continue
		}
		take := lvl.Volume
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filled = filled.Add(take)
		cost = cost.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}

	if filled.IsZero() {
		return Quote{}
	}

	return Quote{
		AvgPrice:   cost.Div(filled),
		FilledQty:  filled,
		Sufficient: remaining.IsZero(),
	}
}
