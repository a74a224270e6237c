package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is a top-of-book snapshot for one pair. Tickers are transient:
// one batch per scan cycle, discarded afterwards.
type Ticker struct {
	Symbol     string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	CapturedAt time.Time
}

// Valid reports whether both sides of the book are quoted.
func (t Ticker) Valid() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}
