package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RouteLegs is the fixed number of market orders in a triangular route.
const RouteLegs = 3

// Route is an ordered triple of pair symbols forming a closed currency loop
// back to the base currency, e.g. [SOL/USDT, SOL/ETH, ETH/USDT]. Immutable
// once constructed.
type Route struct {
	Symbols      [RouteLegs]string
	Intermediate string // intermediate currency the route was generated for
}

// String renders the route as "SOL/USDT -> SOL/ETH -> ETH/USDT".
func (r Route) String() string {
	return strings.Join(r.Symbols[:], " -> ")
}

// Opportunity is a validated, slippage-priced route ready for dispatch.
// Created by the validator, consumed once by the command channel, then
// discarded; nothing is persisted beyond the optional journal.
type Opportunity struct {
	ID         string
	Route      Route
	FastROI    decimal.Decimal // ticker-only round-trip estimate, percent
	NetROI     decimal.Decimal // depth-and-fee validated estimate, percent
	DetectedAt time.Time
}
