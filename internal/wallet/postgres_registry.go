package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/txn"
)

const walletColumns = `id, owner_user_id, wallet_type, balance, currency, status, status_reason, created_at, updated_at`

// PostgresRegistry stores wallets in PostgreSQL.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

// NewPostgresRegistry builds a registry backed by PostgreSQL.
func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRegistry) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return err
	}
	_, err = txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO wallets
        (id, owner_user_id, wallet_type, balance, currency, status, status_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		walletID, ownerID, string(w.Type), w.Balance, w.Currency, string(w.Status), w.StatusReason, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if txn.IsUniqueViolation(err) {
		return ErrAlreadyProvisioned
	}
	return err
}

// Get fetches a wallet by identifier.
func (r *PostgresRegistry) Get(ctx context.Context, id string) (Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// GetForUpdate locks the wallet row until the surrounding unit ends.
func (r *PostgresRegistry) GetForUpdate(ctx context.Context, id string) (Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRegistry) getOne(ctx context.Context, query, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return scanWallet(txn.Conn(ctx, r.db).QueryRow(ctx, query, walletID))
}

func (r *PostgresRegistry) FindByOwnerAndType(ctx context.Context, ownerID string, t Type) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+walletColumns+`
        FROM wallets WHERE owner_user_id = $1 AND wallet_type = $2`, owner, string(t))
	return scanWallet(row)
}

func (r *PostgresRegistry) ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []Wallet{}, nil
	}
	rows, err := txn.Conn(ctx, r.db).Query(ctx, `SELECT `+walletColumns+`
        FROM wallets WHERE owner_user_id = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make([]Wallet, 0, len(UserTypes))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// AdjustBalance applies delta with a compare-and-swap on the balance. When no
// row matches, the current row is read back to tell the caller why.
func (r *PostgresRegistry) AdjustBalance(ctx context.Context, id string, delta, expectedPrior int64) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}

	conn := txn.Conn(ctx, r.db)
	row := conn.QueryRow(ctx, `UPDATE wallets
        SET balance = balance + $2, updated_at = $4
        WHERE id = $1 AND balance = $3 AND status = 'active'
          AND (wallet_type = 'clearing' OR balance + $2 >= 0)
        RETURNING `+walletColumns, walletID, delta, expectedPrior, time.Now().UTC())
	w, err := scanWallet(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, fmt.Errorf("adjust wallet %s: %w", id, err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	switch {
	case !current.IsActive():
		return Wallet{}, ErrNotActive
	case current.Balance != expectedPrior:
		return Wallet{}, ErrBalanceChanged
	default:
		return Wallet{}, ErrInsufficient
	}
}

func (r *PostgresRegistry) SetStatus(ctx context.Context, id string, status Status, reason, actorID string) (Wallet, error) {
	current, err := r.GetForUpdate(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return Wallet{}, err
	}
	if current.Status == status {
		return current, nil
	}

	row := txn.Conn(ctx, r.db).QueryRow(ctx, `UPDATE wallets
        SET status = $2, status_reason = $3, status_changed_by = $4, updated_at = $5
        WHERE id = $1
        RETURNING `+walletColumns, uuid.MustParse(current.ID), string(status), reason, actorID, time.Now().UTC())
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                 Wallet
		id, ownerID       uuid.UUID
		walletType, state string
	)
	if err := row.Scan(&id, &ownerID, &walletType, &w.Balance, &w.Currency, &state, &w.StatusReason, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.Type = Type(walletType)
	w.Status = Status(state)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
