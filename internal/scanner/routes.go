// Package scanner detects triangular arbitrage opportunities: it enumerates
// candidate routes from pair metadata, pre-filters them on top-of-book
// tickers, and re-prices survivors against real depth before emitting a
// command to the executor.
package scanner

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// Candidate is a route that survived the fast filter, carrying its
// ticker-only ROI estimate.
type Candidate struct {
	Route   domain.Route
	FastROI decimal.Decimal
}

// Generator enumerates triangular routes for a base currency against a
// small fixed set of intermediate currencies.
type Generator struct {
	base          string
	intermediates []string
}

// NewGenerator creates a Generator for the given base currency (e.g.
// "USDT") and intermediates (e.g. ETH, BNB, BTC).
func NewGenerator(base string, intermediates []string) *Generator {
	return &Generator{base: base, intermediates: intermediates}
}

// Candidates builds every closed loop [COIN/BASE, cross, INT/BASE] that the
// pair snapshot supports. Inactive pairs, leveraged tokens, and loops whose
// cross or exit pair does not exist are skipped. The cross pair may be
// listed either way around (COIN/INT or INT/COIN); direction is resolved
// later from the pair's base and quote, never from its position.
func (g *Generator) Candidates(pairs map[string]domain.PairInfo) []domain.Route {
	var routes []domain.Route

	for sym, p := range pairs {
		if !p.Active || p.Quote != g.base || p.IsLeveraged() {
			continue
		}
		coin := p.Base

		for _, inter := range g.intermediates {
			if coin == inter {
				continue
			}

			cross := domain.Symbol(coin, inter)
			if cp, ok := pairs[cross]; !ok || !cp.Active {
				cross = domain.Symbol(inter, coin)
				if cp, ok := pairs[cross]; !ok || !cp.Active {
					continue
				}
			}

			exit := domain.Symbol(inter, g.base)
			if ep, ok := pairs[exit]; !ok || !ep.Active {
				continue
			}

			routes = append(routes, domain.Route{
				Symbols:      [domain.RouteLegs]string{sym, cross, exit},
				Intermediate: inter,
			})
		}
	}

	// Map iteration is randomized; keep scan order stable across cycles.
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Symbols[0] != routes[j].Symbols[0] {
			return routes[i].Symbols[0] < routes[j].Symbols[0]
		}
		return routes[i].Intermediate < routes[j].Intermediate
	})
	return routes
}

// Prefilter computes an approximate round-trip multiplier for each route
// using only top-of-book tickers and keeps routes whose ROI meets
// thresholdPct. This bounds the number of depth fetches per cycle, which is
// the dominant cost of a scan.
func (g *Generator) Prefilter(
	routes []domain.Route,
	pairs map[string]domain.PairInfo,
	tickers map[string]domain.Ticker,
	stake decimal.Decimal,
	thresholdPct decimal.Decimal,
) []Candidate {
	var out []Candidate
	for _, r := range routes {
		roi, err := g.fastROI(r, pairs, tickers, stake)
		if err != nil {
			continue
		}
		if roi.GreaterThanOrEqual(thresholdPct) {
			out = append(out, Candidate{Route: r, FastROI: roi})
		}
	}
	return out
}

// fastROI chains the three legs at top-of-book prices: buys lift the ask,
// sells hit the bid. Fees are ignored here; the validator prices them.
func (g *Generator) fastROI(
	route domain.Route,
	pairs map[string]domain.PairInfo,
	tickers map[string]domain.Ticker,
	stake decimal.Decimal,
) (decimal.Decimal, error) {
	held := g.base
	amount := stake

	for _, sym := range route.Symbols {
		p, ok := pairs[sym]
		if !ok {
			return decimal.Zero, domain.ErrPairNotFound
		}
		t, ok := tickers[sym]
		if !ok || !t.Valid() {
			return decimal.Zero, domain.ErrPairNotFound
		}

		side, acquired, err := domain.ResolveLeg(held, p)
		if err != nil {
			return decimal.Zero, err
		}
		if side == domain.OrderSideBuy {
			amount = amount.Div(t.Ask)
		} else {
			amount = amount.Mul(t.Bid)
		}
		held = acquired
	}

	if held != g.base {
		return decimal.Zero, domain.ErrRouting
	}
	return amount.Sub(stake).Div(stake).Mul(decimal.NewFromInt(100)), nil
}
