package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults
// plus environment overrides apply. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. A few unprefixed aliases are kept for compatibility with older
// deployments.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "ARBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.StreamURL, "ARBOT_EXCHANGE_STREAM_URL")
	setStr(&cfg.Exchange.ApiKey, "ARBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiKey, "BINANCE_API_KEY") // compatibility alias
	setStr(&cfg.Exchange.SecretKey, "ARBOT_EXCHANGE_SECRET_KEY")
	setStr(&cfg.Exchange.SecretKey, "BINANCE_SECRET_KEY") // compatibility alias
	setBool(&cfg.Exchange.UseStream, "ARBOT_EXCHANGE_USE_STREAM")

	// ── Channel ──
	setStr(&cfg.Channel.Host, "ARBOT_CHANNEL_HOST")
	setStr(&cfg.Channel.Host, "HOST") // compatibility alias
	setInt(&cfg.Channel.Port, "ARBOT_CHANNEL_PORT")
	setInt(&cfg.Channel.Port, "PORT") // compatibility alias
	setStr(&cfg.Channel.Secret, "ARBOT_CHANNEL_SECRET")
	setStr(&cfg.Channel.Secret, "EXECUTOR_SECRET") // compatibility alias
	setInt(&cfg.Channel.QueueSize, "ARBOT_CHANNEL_QUEUE_SIZE")
	setDuration(&cfg.Channel.MaxAge, "ARBOT_CHANNEL_MAX_AGE")
	setDuration(&cfg.Channel.DedupTTL, "ARBOT_CHANNEL_DEDUP_TTL")

	// ── Scanner ──
	setStr(&cfg.Scanner.BaseCurrency, "ARBOT_SCANNER_BASE_CURRENCY")
	setStringSlice(&cfg.Scanner.Intermediates, "ARBOT_SCANNER_INTERMEDIATES")
	setFloat64(&cfg.Scanner.Stake, "ARBOT_SCANNER_STAKE")
	setFloat64(&cfg.Scanner.FeePct, "ARBOT_SCANNER_FEE_PCT")
	setFloat64(&cfg.Scanner.FastThresholdPct, "ARBOT_SCANNER_FAST_THRESHOLD_PCT")
	setFloat64(&cfg.Scanner.MinNetROIPct, "ARBOT_SCANNER_MIN_NET_ROI_PCT")
	setInt(&cfg.Scanner.BookDepth, "ARBOT_SCANNER_BOOK_DEPTH")
	setInt(&cfg.Scanner.MaxParallelBooks, "ARBOT_SCANNER_MAX_PARALLEL_BOOKS")
	setDuration(&cfg.Scanner.Cooldown, "ARBOT_SCANNER_COOLDOWN")
	setDuration(&cfg.Scanner.CycleIdle, "ARBOT_SCANNER_CYCLE_IDLE")
	setDuration(&cfg.Scanner.ErrorBackoff, "ARBOT_SCANNER_ERROR_BACKOFF")

	// ── Executor ──
	setFloat64(&cfg.Executor.InitialCapital, "ARBOT_EXECUTOR_INITIAL_CAPITAL")
	setDuration(&cfg.Executor.LegTimeout, "ARBOT_EXECUTOR_LEG_TIMEOUT")
	setFloat64(&cfg.Executor.SafetyShrink, "ARBOT_EXECUTOR_SAFETY_SHRINK")
	setDuration(&cfg.Executor.LockTTL, "ARBOT_EXECUTOR_LOCK_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramChatID, "ARBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID") // compatibility alias
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
	setStr(&cfg.LogFile, "ARBOT_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
