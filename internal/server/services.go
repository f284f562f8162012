package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bayarin/bayarin/internal/admin"
	"github.com/bayarin/bayarin/internal/audit"
	"github.com/bayarin/bayarin/internal/auth"
	"github.com/bayarin/bayarin/internal/config"
	"github.com/bayarin/bayarin/internal/funding"
	"github.com/bayarin/bayarin/internal/idempotency"
	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/infra"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/notification"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/user"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Services holds every backend and domain service of one process.
type Services struct {
	DB    *pgxpool.Pool
	Cache *redis.Client

	Tokens     *auth.TokenManager
	Auth       *auth.Service
	Identity   *identity.Service
	Wallets    *wallet.Service
	Engine     *transaction.Engine
	Reconciler *transaction.Reconciler
	Admin      *admin.Service
	Users      *user.Service
	Formatter  money.Formatter

	// Purger is set when the idempotency backend has no native expiry.
	Purger interface {
		PurgeExpired(ctx context.Context) (int, error)
	}

	closers []func() error
}

type storage struct {
	tx           txn.Manager
	ledger       ledger.Store
	wallets      wallet.Registry
	transactions transaction.Repository
	identities   identity.Repository
	audits       audit.Repository
}

// Build connects the configured backends and assembles the services. The
// clearing wallet and the bootstrap admin are created when missing.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Services, error) {
	svcs := &Services{Formatter: money.NewFormatter(cfg.Currency, cfg.CurrencyMinorUnit)}
	if err := svcs.build(ctx, cfg, logger); err != nil {
		svcs.Close()
		return nil, err
	}
	return svcs, nil
}

func (s *Services) build(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := s.openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.RedisURL != "" {
		s.Cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, s.Cache.Close)
	}

	tracker, err := s.openTracker(cfg)
	if err != nil {
		return err
	}
	events, err := s.openPublisher(cfg, logger)
	if err != nil {
		return err
	}

	s.Identity = identity.NewService(store.identities)
	s.Wallets = wallet.NewService(store.wallets, store.ledger, store.tx, cfg.Currency)
	s.Tokens = auth.NewTokenManager(cfg.UserTokenSecret, cfg.AdminTokenSecret, cfg.TokenTTL)
	s.Auth = auth.NewService(s.Identity, s.Wallets, store.tx, s.Tokens)
	s.Users = user.NewService(s.Identity, s.Wallets)

	clearing, err := s.Wallets.EnsureClearing(ctx)
	if err != nil {
		return fmt.Errorf("ensure clearing wallet: %w", err)
	}
	if cfg.AdminBootstrapUsername != "" && cfg.AdminBootstrapPassword != "" {
		if _, err := s.Identity.EnsureAdmin(ctx, cfg.AdminBootstrapUsername, cfg.AdminBootstrapPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	s.Engine = transaction.NewEngine(transaction.Dependencies{
		Repository:       store.transactions,
		Wallets:          store.wallets,
		Ledger:           store.ledger,
		Tx:               store.tx,
		Tracker:          tracker,
		Channels:         funding.NewStaticChannels(funding.DefaultChannels()...),
		PINs:             s.Identity,
		Events:           events,
		Logger:           logger,
		Currency:         cfg.Currency,
		ClearingWalletID: clearing.ID,
	})
	s.Reconciler = transaction.NewReconciler(s.Engine, cfg.PendingTimeout)
	s.Admin = admin.NewService(s.Engine, s.Identity, store.wallets, store.ledger, store.audits, store.tx, events, logger)
	return nil
}

func (s *Services) openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.StorageBackend == config.BackendMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage{
			tx:           txn.NewMemory(),
			ledger:       ledger.NewMemoryStore(),
			wallets:      wallet.NewMemoryRegistry(),
			transactions: transaction.NewMemoryRepository(),
			identities:   identity.NewMemoryRepository(),
			audits:       audit.NewMemoryRepository(),
		}, nil
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return storage{}, err
	}
	s.DB = db
	s.closers = append(s.closers, func() error { db.Close(); return nil })

	if cfg.MigrateOnStart {
		if err := infra.Migrate(ctx, db, logger); err != nil {
			return storage{}, err
		}
	}
	return storage{
		tx:           txn.NewPostgres(db),
		ledger:       ledger.NewPostgresStore(db),
		wallets:      wallet.NewPostgresRegistry(db),
		transactions: transaction.NewPostgresRepository(db),
		identities:   identity.NewPostgresRepository(db),
		audits:       audit.NewPostgresRepository(db),
	}, nil
}

func (s *Services) openTracker(cfg config.Config) (idempotency.Tracker, error) {
	switch cfg.IdempotencyBackend {
	case config.BackendRedis:
		return idempotency.NewRedisTracker(s.Cache, cfg.IdempotencyTTL), nil
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.IdempotencyBoltPath), 0o755); err != nil {
			return nil, fmt.Errorf("create idempotency directory: %w", err)
		}
		bt, err := idempotency.OpenBoltTracker(cfg.IdempotencyBoltPath, cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, bt.Close)
		s.Purger = bt
		return bt, nil
	default:
		mt := idempotency.NewMemoryTracker(cfg.IdempotencyTTL)
		s.Purger = mt
		return mt, nil
	}
}

func (s *Services) openPublisher(cfg config.Config, logger *slog.Logger) (notification.Publisher, error) {
	switch cfg.EventsBackend {
	case config.BackendRedis:
		return notification.NewRedisPublisher(s.Cache, cfg.EventsChannel), nil
	case config.BackendKafka:
		kp := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		s.closers = append(s.closers, kp.Close)
		return kp, nil
	default:
		return notification.NewLoggerPublisher(logger), nil
	}
}

// Close releases the backends in reverse order of opening.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
