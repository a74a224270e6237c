package domain

import "strings"

// PairInfo is an immutable snapshot of a trading pair's metadata. It is
// refreshed periodically from the exchange and read-only to everything
// outside the gateway.
type PairInfo struct {
	Symbol string // unified form, e.g. "ETH/USDT"
	Base   string
	Quote  string
	Active bool
}

// IsLeveraged reports whether the pair is a leveraged/derivative token by
// exchange naming convention (UP/DOWN suffixed base assets).
func (p PairInfo) IsLeveraged() bool {
	return strings.HasSuffix(p.Base, "UP") || strings.HasSuffix(p.Base, "DOWN")
}

// Symbol joins base and quote into the unified slash form.
func Symbol(base, quote string) string {
	return base + "/" + quote
}
