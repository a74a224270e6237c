package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// CommandDispatcher delivers an emitted route to the execution side.
// Implemented by command.Sender.
type CommandDispatcher interface {
	Send(ctx context.Context, route domain.Route) error
}

// TickerSource is an optional fresher source of top-of-book quotes than the
// bulk REST fetch, e.g. the exchange's book-ticker stream.
type TickerSource interface {
	Ready() bool
	Snapshot() map[string]domain.Ticker
}

// Notifier is the subset of the notification service the scanner uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds scanner loop parameters.
type Config struct {
	FastStake        decimal.Decimal // capital assumed by the fast filter
	FastThresholdPct decimal.Decimal
	MaxParallelBooks int
	CycleIdle        time.Duration // pause after a clean cycle
	ErrorBackoff     time.Duration // pause after a failed cycle
}

// Scanner drives the continuous detection loop: pair snapshot, bulk
// tickers, route generation, fast filter, depth validation, emission. A
// failed cycle is logged and retried after a backoff; the loop never
// terminates on a single cycle's failure.
type Scanner struct {
	gw         domain.MarketGateway
	gen        *Generator
	validator  *Validator
	dispatcher CommandDispatcher
	feed       TickerSource             // optional
	journal    domain.OpportunityJournal // optional
	notifier   Notifier                  // optional
	cfg        Config
	logger     *slog.Logger
}

// New creates a Scanner. feed, journal, and notifier may be nil.
func New(
	gw domain.MarketGateway,
	gen *Generator,
	validator *Validator,
	dispatcher CommandDispatcher,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	if cfg.MaxParallelBooks <= 0 {
		cfg.MaxParallelBooks = 1
	}
	return &Scanner{
		gw:         gw,
		gen:        gen,
		validator:  validator,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "scanner")),
	}
}

// SetTickerSource wires an optional streaming ticker source.
func (s *Scanner) SetTickerSource(feed TickerSource) { s.feed = feed }

// SetJournal wires an optional opportunity journal.
func (s *Scanner) SetJournal(j domain.OpportunityJournal) { s.journal = j }

// SetNotifier wires an optional operator notifier.
func (s *Scanner) SetNotifier(n Notifier) { s.notifier = n }

// Run executes scan cycles until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started")
	defer s.logger.Info("scanner stopped")

	for {
		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("scan cycle failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", s.cfg.ErrorBackoff),
			)
			if !sleep(ctx, s.cfg.ErrorBackoff) {
				return ctx.Err()
			}
			continue
		}
		if !sleep(ctx, s.cfg.CycleIdle) {
			return ctx.Err()
		}
	}
}

// cycle runs one full scan pass.
func (s *Scanner) cycle(ctx context.Context) error {
	start := time.Now()

	list, err := s.gw.ListActivePairs(ctx)
	if err != nil {
		return fmt.Errorf("scanner: list pairs: %w", err)
	}
	pairs := make(map[string]domain.PairInfo, len(list))
	for _, p := range list {
		pairs[p.Symbol] = p
	}

	tickers, err := s.tickers(ctx)
	if err != nil {
		return fmt.Errorf("scanner: tickers: %w", err)
	}

	routes := s.gen.Candidates(pairs)
	candidates := s.gen.Prefilter(routes, pairs, tickers, s.cfg.FastStake, s.cfg.FastThresholdPct)

	s.logger.Info("scan cycle",
		slog.Int("pairs", len(pairs)),
		slog.Int("routes", len(routes)),
		slog.Int("candidates", len(candidates)),
	)

	// Depth fetches for independent candidates are embarrassingly
	// parallel; the emission gate stays serialized inside the validator.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelBooks)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			s.evaluate(gctx, cand, pairs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("scan cycle complete",
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// evaluate validates one candidate and emits it when the gate passes.
// Validation failures are per-candidate conditions, never cycle failures.
func (s *Scanner) evaluate(ctx context.Context, cand Candidate, pairs map[string]domain.PairInfo) {
	opp, err := s.validator.Validate(ctx, cand.Route, pairs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLiquidityInsufficient),
			errors.Is(err, domain.ErrPairNotFound),
			errors.Is(err, domain.ErrRouting):
			s.logger.Debug("candidate skipped",
				slog.String("route", cand.Route.String()),
				slog.String("reason", err.Error()),
			)
		default:
			s.logger.Warn("candidate validation failed",
				slog.String("route", cand.Route.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	opp.FastROI = cand.FastROI

	if !s.validator.Accept(opp) {
		return
	}
	s.emit(ctx, opp)
}

// emit dispatches the opportunity to the executor and fans out to the
// journal and notifier. Journal and notifier failures are logged only.
func (s *Scanner) emit(ctx context.Context, opp domain.Opportunity) {
	log := s.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("route", opp.Route.String()),
		slog.String("fast_roi", opp.FastROI.StringFixed(4)),
		slog.String("net_roi", opp.NetROI.StringFixed(4)),
	)

	if err := s.dispatcher.Send(ctx, opp.Route); err != nil {
		log.Error("command dispatch failed", slog.String("error", err.Error()))
		return
	}
	log.Info("opportunity emitted")

	if s.journal != nil {
		if err := s.journal.Append(ctx, opp); err != nil {
			log.Warn("journal append failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("%s\nnet ROI %s%%", opp.Route.String(), opp.NetROI.StringFixed(3))
		if err := s.notifier.Notify(ctx, "opportunity", "Arbitrage opportunity", msg); err != nil {
			log.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
}

// tickers prefers the streaming source when it is warmed up.
func (s *Scanner) tickers(ctx context.Context) (map[string]domain.Ticker, error) {
	if s.feed != nil && s.feed.Ready() {
		return s.feed.Snapshot(), nil
	}
	return s.gw.GetTickers(ctx)
}

// sleep waits for d or context cancellation; false means cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
