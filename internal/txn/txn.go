// Package txn provides the unit of work that makes a ledger append, the
// wallet balance updates and the transaction status change commit together.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/apperr"
)

// Manager runs fn inside a single atomic unit. The context passed to fn
// carries the unit; repositories that receive it join the unit. Nested calls
// join the outer unit instead of opening a new one.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type pgTxKey struct{}

// Postgres implements Manager on a pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres builds a Postgres-backed Manager.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// WithinTx begins a read committed transaction, stores it in the context and
// commits when fn returns nil.
func (m *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// Conn returns the transaction carried by ctx, or the pool when there is none.
func Conn(ctx context.Context, db *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// Postgres reports lost serialization races and deadlocks, which are resolved
// by retrying the whole unit.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type journalKey struct{}

type journal struct {
	undo []func()
}

// Memory implements Manager for the in-memory repositories. Units are
// serialized; writes made inside a unit register undo closures through
// OnRollback and are undone in reverse order when fn fails.
type Memory struct {
	mu sync.Mutex
}

// NewMemory builds an in-memory Manager.
func NewMemory() *Memory {
	return &Memory{}
}

// WithinTx runs fn and rolls back every registered write when it fails.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo for the unit carried by ctx. Outside a unit the
// write is final and undo is dropped.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}
