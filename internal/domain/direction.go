package domain

import "fmt"

// ResolveLeg decides what a leg does given the currently held currency and
// the leg pair's metadata. The rule is symmetric in base and quote; the
// intermediate currency's identity plays no part:
//
//	held == quote -> BUY, acquiring the pair's base
//	held == base  -> SELL, acquiring the pair's quote
//	neither       -> ErrRouting; the route is malformed, no order may be
//	                 placed, and no rescue is possible.
func ResolveLeg(held string, pair PairInfo) (OrderSide, string, error) {
	switch held {
	case pair.Quote:
		return OrderSideBuy, pair.Base, nil
	case pair.Base:
		return OrderSideSell, pair.Quote, nil
	default:
		return "", "", fmt.Errorf("%w: hold %s, pair %s", ErrRouting, held, pair.Symbol)
	}
}
