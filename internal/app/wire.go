package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirgeek/Bot-Arbitraje/internal/cache/redis"
	"github.com/amirgeek/Bot-Arbitraje/internal/config"
	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
	"github.com/amirgeek/Bot-Arbitraje/internal/notify"
	"github.com/amirgeek/Bot-Arbitraje/internal/platform/binance"
	"github.com/amirgeek/Bot-Arbitraje/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// ScanGateway serves the detection loop's bulk reads; ExecGateway
	// places orders. Separate handles keep a burst of depth fetches from
	// delaying an order in flight.
	ScanGateway *binance.Client
	ExecGateway *binance.Client

	// TickerFeed streams top-of-book quotes; nil when the stream is
	// disabled.
	TickerFeed *binance.TickerFeed

	// Optional infrastructure; nil when the backing service is disabled.
	LockManager    domain.LockManager
	Journal        domain.OpportunityJournal
	ExecutionStore domain.ExecutionStore

	Notifier *notify.Notifier
}

// needsExecution reports whether the mode places orders.
func needsExecution(mode string) bool {
	return mode == "execute" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange gateways ---
	deps.ScanGateway = binance.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.ApiKey, cfg.Exchange.SecretKey)
	deps.ExecGateway = binance.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.ApiKey, cfg.Exchange.SecretKey)

	if cfg.Exchange.UseStream {
		deps.TickerFeed = binance.NewTickerFeed(cfg.Exchange.StreamURL, deps.ScanGateway, logger)
	}

	// --- Redis (optional: distributed capital lock + opportunity journal) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Journal = redis.NewJournal(redisClient)
	}

	// --- PostgreSQL (optional: execution records) ---
	if cfg.Postgres.Enabled && needsExecution(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ExecutionStore = postgres.NewExecutionStore(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
