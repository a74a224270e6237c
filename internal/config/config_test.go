package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Channel.Secret = "test-secret"
	cfg.Exchange.ApiKey = "k"
	cfg.Exchange.SecretKey = "s"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() = %v, want nil", err)
		}
	})

	t.Run("missing channel secret rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Channel.Secret = ""
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() = nil, want error")
		}
		if !strings.Contains(err.Error(), "channel: secret") {
			t.Errorf("error %q does not mention channel secret", err)
		}
	})

	t.Run("scan mode needs no exchange credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "scan"
		cfg.Exchange.ApiKey = ""
		cfg.Exchange.SecretKey = ""
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() = %v, want nil", err)
		}
	})

	t.Run("execute mode requires exchange credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "execute"
		cfg.Exchange.ApiKey = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() = nil, want error")
		}
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "turbo"
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() = nil, want error")
		}
	})

	t.Run("safety shrink above one rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Executor.SafetyShrink = 1.5
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() = nil, want error")
		}
	})

	t.Run("telegram token without chat id rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Notify.TelegramToken = "tok"
		cfg.Notify.TelegramChatID = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() = nil, want error")
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBOT_CHANNEL_SECRET", "from-env")
	t.Setenv("ARBOT_SCANNER_INTERMEDIATES", "ETH, SOL")
	t.Setenv("ARBOT_EXECUTOR_LEG_TIMEOUT", "7s")
	t.Setenv("ARBOT_SCANNER_STAKE", "42.5")
	t.Setenv("ARBOT_REDIS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Channel.Secret != "from-env" {
		t.Errorf("Channel.Secret = %q, want %q", cfg.Channel.Secret, "from-env")
	}
	if got := cfg.Scanner.Intermediates; len(got) != 2 || got[0] != "ETH" || got[1] != "SOL" {
		t.Errorf("Scanner.Intermediates = %v, want [ETH SOL]", got)
	}
	if got := cfg.Executor.LegTimeout.Duration.String(); got != "7s" {
		t.Errorf("Executor.LegTimeout = %s, want 7s", got)
	}
	if cfg.Scanner.Stake != 42.5 {
		t.Errorf("Scanner.Stake = %g, want 42.5", cfg.Scanner.Stake)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
}

func TestLegacyAliases(t *testing.T) {
	t.Setenv("EXECUTOR_SECRET", "legacy-secret")
	t.Setenv("BINANCE_API_KEY", "legacy-key")
	t.Setenv("PORT", "8444")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Channel.Secret != "legacy-secret" {
		t.Errorf("Channel.Secret = %q, want legacy alias value", cfg.Channel.Secret)
	}
	if cfg.Exchange.ApiKey != "legacy-key" {
		t.Errorf("Exchange.ApiKey = %q, want legacy alias value", cfg.Exchange.ApiKey)
	}
	if cfg.Channel.Port != 8444 {
		t.Errorf("Channel.Port = %d, want 8444", cfg.Channel.Port)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "42"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"Exchange.ApiKey":      red.Exchange.ApiKey,
		"Exchange.SecretKey":   red.Exchange.SecretKey,
		"Channel.Secret":       red.Channel.Secret,
		"Redis.Password":       red.Redis.Password,
		"Notify.TelegramToken": red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// The original must be untouched.
	if cfg.Channel.Secret != "test-secret" {
		t.Errorf("original Channel.Secret mutated to %q", cfg.Channel.Secret)
	}

	// Slice copies must be independent.
	red.Scanner.Intermediates[0] = "XXX"
	if cfg.Scanner.Intermediates[0] == "XXX" {
		t.Error("redacted copy shares Intermediates slice with original")
	}
}
