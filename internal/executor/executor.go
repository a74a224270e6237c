// Package executor consumes authenticated route commands and drives the
// three-leg execution state machine against the market gateway, including
// the rescue protocol that recovers capital to the base currency after a
// partial failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// capitalLockKey identifies the shared capital pool in the lock manager.
const capitalLockKey = "capital"

// Notifier is the subset of the notification service the engine uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine's execution parameters.
type Config struct {
	BaseCurrency   string
	InitialCapital decimal.Decimal
	LegTimeout     time.Duration   // bound on each order submission
	SafetyShrink   decimal.Decimal // e.g. 0.995, absorbs fee/rounding drift
	LockTTL        time.Duration   // distributed capital lock lifetime
}

// Engine runs route commands one at a time. At most one execution may
// consume the capital pool: commands queue in the listener's channel and an
// in-process gate (plus the optional distributed lock) rejects anything
// that would run concurrently.
type Engine struct {
	commands <-chan domain.RouteCommand
	gw       domain.MarketGateway
	cfg      Config
	logger   *slog.Logger

	store    domain.ExecutionStore // optional
	locks    domain.LockManager    // optional
	notifier Notifier              // optional

	busy atomic.Bool
}

// New creates an Engine reading verified commands from commands and trading
// through gw.
func New(commands <-chan domain.RouteCommand, gw domain.MarketGateway, cfg Config, logger *slog.Logger) *Engine {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Engine{
		commands: commands,
		gw:       gw,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// SetStore wires an optional execution record store.
func (e *Engine) SetStore(s domain.ExecutionStore) { e.store = s }

// SetLockManager wires an optional distributed capital lock.
func (e *Engine) SetLockManager(lm domain.LockManager) { e.locks = lm }

// SetNotifier wires an optional operator notifier.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Run processes commands until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("executor started",
		slog.String("base", e.cfg.BaseCurrency),
		slog.String("capital", e.cfg.InitialCapital.String()),
	)
	defer e.logger.Info("executor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-e.commands:
			if !ok {
				return nil
			}
			rec, err := e.Execute(ctx, cmd)
			if err != nil {
				e.logger.Error("execution failed",
					slog.String("command_id", cmd.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			e.logger.Info("execution finished",
				slog.String("command_id", cmd.ID),
				slog.String("status", string(rec.Status)),
				slog.String("final_amount", rec.FinalAmount.String()),
				slog.String("final_currency", rec.FinalCurrency),
			)
		}
	}
}

// Execute runs one command through the state machine and returns the
// terminal execution record. It returns domain.ErrExecutionBusy when
// another execution already holds the capital pool.
func (e *Engine) Execute(ctx context.Context, cmd domain.RouteCommand) (domain.ExecutionRecord, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return domain.ExecutionRecord{}, domain.ErrExecutionBusy
	}
	defer e.busy.Store(false)

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, capitalLockKey, e.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ExecutionRecord{}, domain.ErrExecutionBusy
			}
			return domain.ExecutionRecord{}, fmt.Errorf("executor: capital lock: %w", err)
		}
		defer unlock()
	}

	route := cmd.Payload.Route()
	log := e.logger.With(
		slog.String("command_id", cmd.ID),
		slog.String("route", route.String()),
	)
	log.Info("executing route")

	rec := domain.ExecutionRecord{
		ID:        uuid.New().String(),
		CommandID: cmd.ID,
		Route:     route,
		Status:    domain.ExecInit,
		StartedAt: time.Now().UTC(),
	}

	pairs, tickers, err := e.marketSnapshot(ctx)
	if err != nil {
		// No order was placed; the command dies in INIT with capital intact.
		rec.CompletedAt = time.Now().UTC()
		return rec, fmt.Errorf("executor: market snapshot: %w", err)
	}

	state := domain.ExecutionState{
		HeldCurrency: e.cfg.BaseCurrency,
		HeldAmount:   e.cfg.InitialCapital,
		Status:       domain.ExecInit,
	}

	for i, sym := range route.Symbols {
		state.LegIndex = i
		state.Status = domain.ExecLegRunning

		fill, acquired, err := e.runLeg(ctx, sym, pairs, tickers, &state, log)
		if fill != nil {
			rec.Legs = append(rec.Legs, *fill)
		}
		if err != nil {
			if errors.Is(err, domain.ErrRouting) {
				// Malformed route: the held currency maps to neither side
				// of the pair, so no order was placed and no rescue is
				// possible.
				log.Error("routing error, aborting without rescue",
					slog.String("leg", sym),
					slog.String("held", state.HeldCurrency),
				)
				rec.Status = domain.ExecAborting
				e.complete(&rec, state)
				e.finish(ctx, &rec, log)
				return rec, err
			}
			e.abort(ctx, &rec, &state, pairs, log)
			e.finish(ctx, &rec, log)
			return rec, nil
		}

		// Advance: the fill's proceeds become the next leg's input.
		if fill.Side == domain.OrderSideBuy {
			state.HeldAmount = fill.FilledQty
		} else {
			state.HeldAmount = fill.FilledQty.Mul(fill.AvgPrice)
		}
		state.HeldCurrency = acquired
		state.LegIndex = i + 1
	}

	state.Status = domain.ExecDone
	rec.Status = domain.ExecDone
	e.complete(&rec, state)

	pnl := rec.FinalAmount.Sub(e.cfg.InitialCapital)
	log.Info("route complete",
		slog.String("final", rec.FinalAmount.String()),
		slog.String("pnl", pnl.String()),
	)
	e.notify(ctx, "execution", "Route complete",
		fmt.Sprintf("%s\nPnL %s %s", route.String(), pnl.StringFixed(4), e.cfg.BaseCurrency))
	e.finish(ctx, &rec, log)
	return rec, nil
}

// runLeg resolves the leg's direction, sizes and submits the order, and
// classifies the outcome. A non-filled outcome is returned as
// ErrOrderRejected/ErrOrderTimeout so the caller aborts the route.
func (e *Engine) runLeg(
	ctx context.Context,
	sym string,
	pairs map[string]domain.PairInfo,
	tickers map[string]domain.Ticker,
	state *domain.ExecutionState,
	log *slog.Logger,
) (*domain.LegFill, string, error) {
	p, ok := pairs[sym]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrRouting, sym)
	}

	side, acquired, err := domain.ResolveLeg(state.HeldCurrency, p)
	if err != nil {
		return nil, "", err
	}

	var qty decimal.Decimal
	if side == domain.OrderSideBuy {
		t, ok := tickers[sym]
		if !ok || !t.Ask.IsPositive() {
			return nil, "", fmt.Errorf("%w: no reference price for %s", domain.ErrOrderRejected, sym)
		}
		qty = state.HeldAmount.Div(t.Ask)
	} else {
		qty = state.HeldAmount
	}
	qty = qty.Mul(e.cfg.SafetyShrink)

	log.Info("leg order",
		slog.Int("leg", state.LegIndex+1),
		slog.String("symbol", sym),
		slog.String("side", string(side)),
		slog.String("qty", qty.String()),
		slog.String("held", state.HeldCurrency),
	)

	res, outcome := e.placeOrder(ctx, sym, side, qty)
	fill := &domain.LegFill{
		Symbol:       sym,
		Side:         side,
		RequestedQty: qty,
		FilledQty:    res.FilledQty,
		AvgPrice:     res.AvgPrice,
		Outcome:      outcome,
	}

	switch outcome {
	case domain.LegFilled:
		return fill, acquired, nil
	case domain.LegTimeout:
		return fill, "", domain.ErrOrderTimeout
	default:
		return fill, "", domain.ErrOrderRejected
	}
}

// placeOrder submits a market order bounded by the leg timeout and
// classifies the result.
func (e *Engine) placeOrder(ctx context.Context, sym string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderResult, domain.LegOutcome) {
	legCtx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout)
	defer cancel()

	res, err := e.gw.PlaceMarketOrder(legCtx, sym, side, qty)
	switch {
	case err == nil && res.Filled():
		return res, domain.LegFilled
	case err == nil:
		return res, domain.LegUnfilled
	case isTimeout(err):
		return res, domain.LegTimeout
	default:
		return res, domain.LegError
	}
}

// abort runs the rescue protocol after a failed leg. When the held currency
// is still the base currency nothing is in flight and the capital pool is
// intact; otherwise exactly one direct market sell back to base is
// attempted, and its failure is terminal.
func (e *Engine) abort(
	ctx context.Context,
	rec *domain.ExecutionRecord,
	state *domain.ExecutionState,
	pairs map[string]domain.PairInfo,
	log *slog.Logger,
) {
	state.Status = domain.ExecAborting
	rec.Status = domain.ExecAborting
	log.Warn("leg failed, aborting route",
		slog.Int("leg", state.LegIndex+1),
		slog.String("held", state.HeldCurrency),
		slog.String("amount", state.HeldAmount.String()),
	)

	if state.HeldCurrency == e.cfg.BaseCurrency {
		// Nothing left base; no rescue order needed.
		state.Status = domain.ExecRescued
		rec.Status = domain.ExecRescued
		e.complete(rec, *state)
		return
	}

	fill, recovered := e.rescue(ctx, state, pairs, log)
	rec.Rescue = fill
	if fill != nil && fill.Outcome == domain.LegFilled {
		state.HeldCurrency = e.cfg.BaseCurrency
		state.HeldAmount = recovered
		state.Status = domain.ExecRescued
		rec.Status = domain.ExecRescued
		e.complete(rec, *state)
		log.Info("rescue complete",
			slog.String("recovered", recovered.String()),
		)
		return
	}

	state.Status = domain.ExecRescueFailed
	rec.Status = domain.ExecRescueFailed
	e.complete(rec, *state)
	log.Error("rescue failed, manual intervention required",
		slog.String("stranded_currency", state.HeldCurrency),
		slog.String("stranded_amount", state.HeldAmount.String()),
	)
	e.notify(ctx, "rescue_failed", "RESCUE FAILED",
		fmt.Sprintf("Stranded %s %s after route %s. Manual intervention required.",
			state.HeldAmount.StringFixed(8), state.HeldCurrency, rec.Route.String()))
}

// rescue sells the entire held amount against the direct HELD/BASE pair.
// A missing pair or a non-filled order means the rescue failed; no indirect
// multi-hop recovery is attempted.
func (e *Engine) rescue(
	ctx context.Context,
	state *domain.ExecutionState,
	pairs map[string]domain.PairInfo,
	log *slog.Logger,
) (*domain.LegFill, decimal.Decimal) {
	sym := domain.Symbol(state.HeldCurrency, e.cfg.BaseCurrency)
	if _, ok := pairs[sym]; !ok {
		log.Error("no direct rescue pair",
			slog.String("symbol", sym),
		)
		return nil, decimal.Zero
	}

	log.Warn("rescue order",
		slog.String("symbol", sym),
		slog.String("qty", state.HeldAmount.String()),
	)
	res, outcome := e.placeOrder(ctx, sym, domain.OrderSideSell, state.HeldAmount)
	fill := &domain.LegFill{
		Symbol:       sym,
		Side:         domain.OrderSideSell,
		RequestedQty: state.HeldAmount,
		FilledQty:    res.FilledQty,
		AvgPrice:     res.AvgPrice,
		Outcome:      outcome,
	}
	return fill, res.Cost
}

// marketSnapshot fetches the pair index and reference tickers for one
// command.
func (e *Engine) marketSnapshot(ctx context.Context) (map[string]domain.PairInfo, map[string]domain.Ticker, error) {
	list, err := e.gw.ListActivePairs(ctx)
	if err != nil {
		return nil, nil, err
	}
	pairs := make(map[string]domain.PairInfo, len(list))
	for _, p := range list {
		pairs[p.Symbol] = p
	}
	tickers, err := e.gw.GetTickers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pairs, tickers, nil
}

// complete stamps the record's terminal fields from the final state.
func (e *Engine) complete(rec *domain.ExecutionRecord, state domain.ExecutionState) {
	rec.FinalCurrency = state.HeldCurrency
	rec.FinalAmount = state.HeldAmount
	rec.CompletedAt = time.Now().UTC()
}

// finish persists the record; store failures are logged, never fatal.
func (e *Engine) finish(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) {
	if e.store == nil {
		return
	}
	if err := e.store.Create(ctx, *rec); err != nil {
		log.Warn("execution record not persisted", slog.String("error", err.Error()))
	}
}

// notify fans out to the operator channel when one is wired.
func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notify failed", slog.String("error", err.Error()))
	}
}

// isTimeout classifies deadline expiry from either the leg context or the
// transport.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrOrderTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
