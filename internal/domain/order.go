package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether a market order buys the base asset or sells it.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderResult is the exchange's answer to a market order submission.
// FilledQty is in base units, Cost in quote units.
type OrderResult struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	FilledQty decimal.Decimal
	Cost      decimal.Decimal
	AvgPrice  decimal.Decimal
}

// Filled reports whether any quantity was executed.
func (r OrderResult) Filled() bool {
	return r.FilledQty.IsPositive()
}
