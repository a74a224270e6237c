package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketGateway is the exchange connectivity capability. The scanning path
// uses a read-mostly handle (pairs, tickers, depth); the execution engine
// holds its own handle for order placement so the two paths never contend.
type MarketGateway interface {
	// ListActivePairs returns the current tradable pair snapshot.
	ListActivePairs(ctx context.Context) ([]PairInfo, error)

	// GetTickers returns top-of-book quotes for all pairs, keyed by
	// unified symbol.
	GetTickers(ctx context.Context) (map[string]Ticker, error)

	// GetOrderBook returns up to depth levels per side for one pair.
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)

	// PlaceMarketOrder submits a market order. qty is in base units for
	// both sides; precision rounding is the gateway's job.
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal) (OrderResult, error)
}
