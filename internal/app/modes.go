package app

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/amirgeek/Bot-Arbitraje/internal/command"
	"github.com/amirgeek/Bot-Arbitraje/internal/executor"
	"github.com/amirgeek/Bot-Arbitraje/internal/scanner"
)

// ScanMode runs the detection loop only. Accepted opportunities are signed
// and sent to the command channel address, where a separate execute-mode
// process is expected to listen.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.String("channel", a.cfg.Channel.Addr()),
	)

	sender := command.NewSender(a.cfg.Channel.Addr(), []byte(a.cfg.Channel.Secret), a.logger)
	defer sender.Close()

	g, ctx := errgroup.WithContext(ctx)

	if deps.TickerFeed != nil {
		g.Go(func() error {
			return deps.TickerFeed.Run(ctx)
		})
	}

	sc := a.buildScanner(deps, sender)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	return g.Wait()
}

// ExecuteMode runs the command listener and the execution engine only.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode",
		slog.String("listen", a.cfg.Channel.Addr()),
	)

	listener := command.NewListener(command.ListenerConfig{
		Addr:      a.cfg.Channel.Addr(),
		Secret:    []byte(a.cfg.Channel.Secret),
		QueueSize: a.cfg.Channel.QueueSize,
		MaxAge:    a.cfg.Channel.MaxAge.Duration,
		DedupTTL:  a.cfg.Channel.DedupTTL.Duration,
	}, a.logger)

	engine := a.buildEngine(deps, listener)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(ctx)
	})
	g.Go(func() error {
		return engine.Run(ctx)
	})

	return g.Wait()
}

// FullMode runs detection and execution in one process. The scanner still
// dispatches through the loopback command channel so the signed envelope
// path is exercised end to end.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("channel", a.cfg.Channel.Addr()),
	)

	listener := command.NewListener(command.ListenerConfig{
		Addr:      a.cfg.Channel.Addr(),
		Secret:    []byte(a.cfg.Channel.Secret),
		QueueSize: a.cfg.Channel.QueueSize,
		MaxAge:    a.cfg.Channel.MaxAge.Duration,
		DedupTTL:  a.cfg.Channel.DedupTTL.Duration,
	}, a.logger)

	engine := a.buildEngine(deps, listener)

	sender := command.NewSender(a.cfg.Channel.Addr(), []byte(a.cfg.Channel.Secret), a.logger)
	defer sender.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(ctx)
	})
	g.Go(func() error {
		return engine.Run(ctx)
	})

	if deps.TickerFeed != nil {
		g.Go(func() error {
			return deps.TickerFeed.Run(ctx)
		})
	}

	sc := a.buildScanner(deps, sender)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	return g.Wait()
}

// buildScanner assembles the detection pipeline from configuration.
func (a *App) buildScanner(deps *Dependencies, dispatcher scanner.CommandDispatcher) *scanner.Scanner {
	gen := scanner.NewGenerator(a.cfg.Scanner.BaseCurrency, a.cfg.Scanner.Intermediates)

	validator := scanner.NewValidator(deps.ScanGateway, scanner.ValidatorConfig{
		BaseCurrency: a.cfg.Scanner.BaseCurrency,
		Stake:        decimal.NewFromFloat(a.cfg.Scanner.Stake),
		FeePct:       decimal.NewFromFloat(a.cfg.Scanner.FeePct),
		MinNetROIPct: decimal.NewFromFloat(a.cfg.Scanner.MinNetROIPct),
		BookDepth:    a.cfg.Scanner.BookDepth,
		Cooldown:     a.cfg.Scanner.Cooldown.Duration,
	}, a.logger)

	sc := scanner.New(deps.ScanGateway, gen, validator, dispatcher, scanner.Config{
		FastStake:        decimal.NewFromFloat(a.cfg.Scanner.Stake),
		FastThresholdPct: decimal.NewFromFloat(a.cfg.Scanner.FastThresholdPct),
		MaxParallelBooks: a.cfg.Scanner.MaxParallelBooks,
		CycleIdle:        a.cfg.Scanner.CycleIdle.Duration,
		ErrorBackoff:     a.cfg.Scanner.ErrorBackoff.Duration,
	}, a.logger)

	if deps.TickerFeed != nil {
		sc.SetTickerSource(deps.TickerFeed)
	}
	if deps.Journal != nil {
		sc.SetJournal(deps.Journal)
	}
	sc.SetNotifier(deps.Notifier)

	return sc
}

// buildEngine assembles the execution engine from configuration.
func (a *App) buildEngine(deps *Dependencies, listener *command.Listener) *executor.Engine {
	engine := executor.New(listener.Commands(), deps.ExecGateway, executor.Config{
		BaseCurrency:   a.cfg.Scanner.BaseCurrency,
		InitialCapital: decimal.NewFromFloat(a.cfg.Executor.InitialCapital),
		LegTimeout:     a.cfg.Executor.LegTimeout.Duration,
		SafetyShrink:   decimal.NewFromFloat(a.cfg.Executor.SafetyShrink),
		LockTTL:        a.cfg.Executor.LockTTL.Duration,
	}, a.logger)

	if deps.ExecutionStore != nil {
		engine.SetStore(deps.ExecutionStore)
	}
	if deps.LockManager != nil {
		engine.SetLockManager(deps.LockManager)
	}
	engine.SetNotifier(deps.Notifier)

	return engine
}
