package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("IDEMPOTENCY_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "user-secret")
	t.Setenv("ADMIN_JWT_SECRET", "admin-secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected 24h idempotency ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.Currency != "IDR" || cfg.CurrencyMinorUnit != 100 {
		t.Fatalf("unexpected currency defaults %s/%d", cfg.Currency, cfg.CurrencyMinorUnit)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
}

func TestLoadRejectsSharedSecrets(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ADMIN_JWT_SECRET", "user-secret")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected shared secret rejection, got %v", err)
	}
}

func TestLoadRejectsIdempotencyTTLOutsideWindow(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("IDEMPOTENCY_TTL", "1h")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "IDEMPOTENCY_TTL") {
		t.Fatalf("expected ttl rejection, got %v", err)
	}
}

func TestLoadRequiresRedisURLForRedisBackends(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("IDEMPOTENCY_BACKEND", "redis")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadParsesKafkaBrokers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("EVENTS_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}
