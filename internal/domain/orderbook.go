package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+volume entry in an order book.
type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBook holds bounded-depth market depth for one pair. Asks are sorted
// ascending by price, bids descending. Fetched on demand, never cached.
type OrderBook struct {
	Symbol     string
	Asks       []PriceLevel
	Bids       []PriceLevel
	CapturedAt time.Time
}

// BestAsk returns the lowest ask price, or zero when the side is empty.
func (b OrderBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// BestBid returns the highest bid price, or zero when the side is empty.
func (b OrderBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}
