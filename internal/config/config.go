// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Channel  ChannelConfig  `toml:"channel"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Executor ExecutorConfig `toml:"executor"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	LogFile  string         `toml:"log_file"`
}

// ExchangeConfig holds exchange API endpoints and credentials.
type ExchangeConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
	ApiKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
	UseStream bool   `toml:"use_stream"`
}

// ChannelConfig holds the signed command channel parameters. Host and Port
// describe the executor's listening socket; the detector dials the same
// pair. Secret signs and verifies every envelope.
type ChannelConfig struct {
	Host      string   `toml:"host"`
	Port      int      `toml:"port"`
	Secret    string   `toml:"secret"`
	QueueSize int      `toml:"queue_size"`
	MaxAge    duration `toml:"max_age"`
	DedupTTL  duration `toml:"dedup_ttl"`
}

// Addr returns the host:port dial/listen address.
func (c ChannelConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScannerConfig holds detection loop parameters.
type ScannerConfig struct {
	BaseCurrency     string   `toml:"base_currency"`
	Intermediates    []string `toml:"intermediates"`
	Stake            float64  `toml:"stake"`
	FeePct           float64  `toml:"fee_pct"`
	FastThresholdPct float64  `toml:"fast_threshold_pct"`
	MinNetROIPct     float64  `toml:"min_net_roi_pct"`
	BookDepth        int      `toml:"book_depth"`
	MaxParallelBooks int      `toml:"max_parallel_books"`
	Cooldown         duration `toml:"cooldown"`
	CycleIdle        duration `toml:"cycle_idle"`
	ErrorBackoff     duration `toml:"error_backoff"`
}

// ExecutorConfig holds execution engine parameters.
type ExecutorConfig struct {
	InitialCapital float64  `toml:"initial_capital"`
	LegTimeout     duration `toml:"leg_timeout"`
	SafetyShrink   float64  `toml:"safety_shrink"`
	LockTTL        duration `toml:"lock_ttl"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled the capital lock is in-process only and no journal is written.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. Postgres is
// optional: when disabled execution records are log-only.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "200ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "200ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:   "https://api.binance.com",
			StreamURL: "wss://stream.binance.com:9443/ws/!bookTicker",
			UseStream: true,
		},
		Channel: ChannelConfig{
			Host:      "127.0.0.1",
			Port:      9999,
			QueueSize: 8,
			MaxAge:    duration{30 * time.Second},
			DedupTTL:  duration{2 * time.Minute},
		},
		Scanner: ScannerConfig{
			BaseCurrency:     "USDT",
			Intermediates:    []string{"ETH", "BNB", "BTC"},
			Stake:            15.0,
			FeePct:           0.1,
			FastThresholdPct: 0.3,
			MinNetROIPct:     0.3,
			BookDepth:        20,
			MaxParallelBooks: 4,
			Cooldown:         duration{10 * time.Second},
			CycleIdle:        duration{2 * time.Second},
			ErrorBackoff:     duration{5 * time.Second},
		},
		Executor: ExecutorConfig{
			InitialCapital: 20.0,
			LegTimeout:     duration{5 * time.Second},
			SafetyShrink:   0.995,
			LockTTL:        duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "rescue_failed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"execute": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, execute, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Channel — the secret protects real capital; refuse to run without it.
	if strings.TrimSpace(c.Channel.Secret) == "" {
		errs = append(errs, "channel: secret must not be empty")
	}
	if c.Channel.Port <= 0 || c.Channel.Port > 65535 {
		errs = append(errs, fmt.Sprintf("channel: port must be 1-65535, got %d", c.Channel.Port))
	}
	if c.Channel.QueueSize < 1 {
		errs = append(errs, "channel: queue_size must be >= 1")
	}

	// Exchange — order placement needs credentials in executing modes.
	mode := strings.ToLower(c.Mode)
	if mode == "execute" || mode == "full" {
		if c.Exchange.ApiKey == "" || c.Exchange.SecretKey == "" {
			errs = append(errs, "exchange: api_key and secret_key are required for mode "+c.Mode)
		}
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}

	// Scanner
	if c.Scanner.BaseCurrency == "" {
		errs = append(errs, "scanner: base_currency must not be empty")
	}
	if len(c.Scanner.Intermediates) == 0 {
		errs = append(errs, "scanner: intermediates must not be empty")
	}
	if c.Scanner.Stake <= 0 {
		errs = append(errs, "scanner: stake must be > 0")
	}
	if c.Scanner.FeePct < 0 || c.Scanner.FeePct >= 100 {
		errs = append(errs, fmt.Sprintf("scanner: fee_pct must be in [0, 100), got %g", c.Scanner.FeePct))
	}
	if c.Scanner.BookDepth < 1 {
		errs = append(errs, "scanner: book_depth must be >= 1")
	}
	if c.Scanner.MaxParallelBooks < 1 {
		errs = append(errs, "scanner: max_parallel_books must be >= 1")
	}

	// Executor
	if c.Executor.InitialCapital <= 0 {
		errs = append(errs, "executor: initial_capital must be > 0")
	}
	if c.Executor.LegTimeout.Duration <= 0 {
		errs = append(errs, "executor: leg_timeout must be > 0")
	}
	if c.Executor.SafetyShrink <= 0 || c.Executor.SafetyShrink > 1 {
		errs = append(errs, fmt.Sprintf("executor: safety_shrink must be in (0, 1], got %g", c.Executor.SafetyShrink))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Notify — a Telegram token without a chat ID (or vice versa) is a
	// misconfiguration, not a disabled channel.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
