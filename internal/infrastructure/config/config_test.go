package config_test

import (
	"testing"
	"time"

	"github.com/kestrelpay/payrolld/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.RedisURL != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisURL)
	}
	if cfg.LedgerMaxAttempts != 3 {
		t.Fatalf("expected default ledger attempts 3, got %d", cfg.LedgerMaxAttempts)
	}
	if cfg.BatchWorkers != 8 {
		t.Fatalf("expected default batch workers 8, got %d", cfg.BatchWorkers)
	}
	if cfg.MetricsPort != "9090" {
		t.Fatalf("expected default metrics port 9090, got %s", cfg.MetricsPort)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("expected default logging info/json, got %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("REFERENCE_CACHE_TTL", "90m")
	t.Setenv("LEDGER_MAX_ATTEMPTS", "5")
	t.Setenv("LEDGER_RETRY_INTERVAL", "25ms")
	t.Setenv("BATCH_WORKERS", "16")
	t.Setenv("BATCH_POLL_INTERVAL", "1s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}
	if cfg.ReferenceCacheTTL != 90*time.Minute {
		t.Fatalf("expected cache TTL override, got %s", cfg.ReferenceCacheTTL)
	}
	if cfg.LedgerMaxAttempts != 5 {
		t.Fatalf("expected ledger attempts override, got %d", cfg.LedgerMaxAttempts)
	}
	if cfg.LedgerRetryInterval != 25*time.Millisecond {
		t.Fatalf("expected retry interval override, got %s", cfg.LedgerRetryInterval)
	}
	if cfg.BatchWorkers != 16 {
		t.Fatalf("expected batch workers override, got %d", cfg.BatchWorkers)
	}
	if cfg.BatchPollInterval != time.Second {
		t.Fatalf("expected poll interval override, got %s", cfg.BatchPollInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level override, got %s", cfg.LogLevel)
	}
}
