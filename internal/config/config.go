package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendLog      = "log"
	BackendKafka    = "kafka"

	minIdempotencyTTL = 24 * time.Hour
	maxIdempotencyTTL = 72 * time.Hour
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `envconfig:"APP_NAME" default:"Bayarin"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// --- Storage ---
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns     int32  `envconfig:"DB_MIN_CONNS" default:"2"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`
	RedisURL       string `envconfig:"REDIS_URL"`

	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// --- Idempotency ---
	IdempotencyBackend  string        `envconfig:"IDEMPOTENCY_BACKEND" default:"redis"`
	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyBoltPath string        `envconfig:"IDEMPOTENCY_BOLT_PATH" default:"data/idempotency.db"`

	// --- Tokens ---
	UserTokenSecret  string        `envconfig:"JWT_SECRET" required:"true"`
	AdminTokenSecret string        `envconfig:"ADMIN_JWT_SECRET" required:"true"`
	TokenTTL         time.Duration `envconfig:"JWT_TTL" default:"24h"`

	// --- Money ---
	Currency          string `envconfig:"CURRENCY" default:"IDR"`
	CurrencyMinorUnit int64  `envconfig:"CURRENCY_MINOR_UNIT" default:"100"`

	// --- Reconciliation ---
	ReconcileSchedule string        `envconfig:"RECONCILE_SCHEDULE" default:"@every 1m"`
	PendingTimeout    time.Duration `envconfig:"PENDING_TIMEOUT" default:"5m"`

	// --- Events ---
	EventsBackend string   `envconfig:"EVENTS_BACKEND" default:"log"`
	EventsChannel string   `envconfig:"EVENTS_REDIS_CHANNEL" default:"transaction_events"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"bayarin.transactions"`

	// --- Login throttling ---
	LoginMaxAttempts int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	LoginWindow      time.Duration `envconfig:"LOGIN_WINDOW" default:"1m"`

	// Creates a super_admin at startup when both are set.
	AdminBootstrapUsername string `envconfig:"ADMIN_BOOTSTRAP_USERNAME"`
	AdminBootstrapPassword string `envconfig:"ADMIN_BOOTSTRAP_PASSWORD"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STORAGE_BACKEND=%s", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.IdempotencyBackend {
	case BackendRedis, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	if c.IdempotencyBackend == BackendBolt && c.IdempotencyBoltPath == "" {
		return fmt.Errorf("IDEMPOTENCY_BOLT_PATH must be set when IDEMPOTENCY_BACKEND=%s", BackendBolt)
	}
	if c.IdempotencyTTL < minIdempotencyTTL || c.IdempotencyTTL > maxIdempotencyTTL {
		return fmt.Errorf("IDEMPOTENCY_TTL must be between %s and %s, got %s", minIdempotencyTTL, maxIdempotencyTTL, c.IdempotencyTTL)
	}

	switch c.EventsBackend {
	case BackendLog, BackendRedis:
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be set when EVENTS_BACKEND=%s", BackendKafka)
		}
	default:
		return fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend)
	}

	if c.NeedsRedis() && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when redis backs idempotency or events")
	}

	if c.UserTokenSecret == c.AdminTokenSecret {
		return fmt.Errorf("JWT_SECRET and ADMIN_JWT_SECRET must differ")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.CurrencyMinorUnit <= 0 {
		return fmt.Errorf("CURRENCY_MINOR_UNIT must be positive")
	}
	if c.PendingTimeout <= 0 {
		return fmt.Errorf("PENDING_TIMEOUT must be positive")
	}
	return nil
}

// NeedsRedis reports whether any configured backend depends on Redis.
func (c Config) NeedsRedis() bool {
	return c.IdempotencyBackend == BackendRedis || c.EventsBackend == BackendRedis
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
