package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
	"github.com/amirgeek/Bot-Arbitraje/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// ValidatorConfig holds the tunable parameters of the profit model.
type ValidatorConfig struct {
	BaseCurrency string
	Stake        decimal.Decimal // simulated stake in base units
	FeePct       decimal.Decimal // per-leg fee rate, percent
	MinNetROIPct decimal.Decimal // emission threshold, percent
	BookDepth    int
	Cooldown     time.Duration // gap enforced between emissions
}

// Validator re-prices a pre-filtered route against real order-book depth
// and per-leg fees, and owns the emission gate: the net-ROI threshold plus
// a process-wide cooldown that prevents signal storms in volatile windows.
type Validator struct {
	gw     domain.MarketGateway
	cfg    ValidatorConfig
	logger *slog.Logger

	mu        sync.Mutex
	coolUntil time.Time
}

// NewValidator creates a Validator backed by the read-mostly gateway handle.
func NewValidator(gw domain.MarketGateway, cfg ValidatorConfig, logger *slog.Logger) *Validator {
	return &Validator{
		gw:     gw,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "validator")),
	}
}

// Validate chains three depth simulations from the configured stake,
// deducting the fee rate from each leg's output, and returns the resulting
// opportunity with its net ROI. A book too shallow for the required size
// yields ErrLiquidityInsufficient; that is a skip, not an operator error.
func (v *Validator) Validate(ctx context.Context, route domain.Route, pairs map[string]domain.PairInfo) (domain.Opportunity, error) {
	held := v.cfg.BaseCurrency
	amount := v.cfg.Stake
	feeKeep := decimal.NewFromInt(1).Sub(v.cfg.FeePct.Div(hundred))

	for _, sym := range route.Symbols {
		p, ok := pairs[sym]
		if !ok {
			return domain.Opportunity{}, fmt.Errorf("%w: %s", domain.ErrPairNotFound, sym)
		}

		side, acquired, err := domain.ResolveLeg(held, p)
		if err != nil {
			return domain.Opportunity{}, err
		}

		book, err := v.gw.GetOrderBook(ctx, sym, v.cfg.BookDepth)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("validator: order book %s: %w", sym, err)
		}

		amount, err = v.priceLeg(book, side, amount)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("%w: %s", err, sym)
		}
		amount = amount.Mul(feeKeep)
		held = acquired
	}

	if held != v.cfg.BaseCurrency {
		return domain.Opportunity{}, fmt.Errorf("%w: loop ends in %s", domain.ErrRouting, held)
	}

	netROI := amount.Sub(v.cfg.Stake).Div(v.cfg.Stake).Mul(hundred)
	return domain.Opportunity{
		ID:         uuid.New().String(),
		Route:      route,
		NetROI:     netROI,
		DetectedAt: time.Now().UTC(),
	}, nil
}

// priceLeg converts the held amount through one leg at its simulated VWAP.
// For a buy the required base quantity is first estimated at the best ask
// and then refined: the whole held quote amount is converted at the
// achieved average price.
func (v *Validator) priceLeg(book domain.OrderBook, side domain.OrderSide, held decimal.Decimal) (decimal.Decimal, error) {
	var required decimal.Decimal
	if side == domain.OrderSideBuy {
		ref := book.BestAsk()
		if !ref.IsPositive() {
			return decimal.Zero, domain.ErrLiquidityInsufficient
		}
		required = held.Div(ref)
	} else {
		required = held
	}

	q := pricing.Simulate(book, side, required, v.cfg.BookDepth)
	if !q.Sufficient {
		return decimal.Zero, domain.ErrLiquidityInsufficient
	}

	if side == domain.OrderSideBuy {
		return held.Div(q.AvgPrice), nil
	}
	return held.Mul(q.AvgPrice), nil
}

// Accept applies the emission gate to a validated opportunity. When the net
// ROI clears the threshold and the cooldown window has elapsed, the cooldown
// is re-armed and true is returned. The gate is serialized process-wide, so
// concurrently validated candidates cannot both emit inside one window.
func (v *Validator) Accept(opp domain.Opportunity) bool {
	if opp.NetROI.LessThanOrEqual(v.cfg.MinNetROIPct) {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	if now.Before(v.coolUntil) {
		v.logger.Debug("opportunity suppressed by cooldown",
			slog.String("route", opp.Route.String()),
			slog.String("net_roi", opp.NetROI.StringFixed(4)),
		)
		return false
	}
	v.coolUntil = now.Add(v.cfg.Cooldown)
	return true
}
