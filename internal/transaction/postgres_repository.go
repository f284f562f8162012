package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/txn"
)

const transactionColumns = `id::text, idempotency_key, initiator_id, type, amount, currency, status,
        COALESCE(from_wallet_id::text, ''), COALESCE(to_wallet_id::text, ''), COALESCE(reference_id::text, ''),
        external_reference, description, failure_reason, created_at, updated_at, completed_at`

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed transaction repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	_, err := txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO transactions
        (id, idempotency_key, initiator_id, type, amount, currency, status, from_wallet_id, to_wallet_id,
         reference_id, external_reference, description, failure_reason, created_at, updated_at, completed_at)
        VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, NULLIF($9, '')::uuid,
         NULLIF($10, '')::uuid, $11, $12, $13, $14, $15, $16)`,
		tx.ID, tx.IdempotencyKey, tx.InitiatorID, string(tx.Type), tx.Amount, tx.Currency, string(tx.Status),
		tx.FromWalletID, tx.ToWalletID, tx.ReferenceID, tx.ExternalReference, tx.Description, tx.FailureReason,
		tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(), tx.CompletedAt)
	if txn.IsUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	if !validID(id) {
		return Transaction{}, ErrNotFound
	}
	return scanTransaction(txn.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1::uuid`, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (Transaction, error) {
	if !validID(id) {
		return Transaction{}, ErrNotFound
	}
	return scanTransaction(txn.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1::uuid FOR UPDATE`, id))
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, initiatorID string, t Type, key string) (Transaction, error) {
	return scanTransaction(txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM transactions
        WHERE initiator_id = $1 AND type = $2 AND idempotency_key = $3 AND status <> 'failed'`,
		initiatorID, string(t), key))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status, failureReason string) (Transaction, error) {
	if !CanTransition(from, to) {
		return Transaction{}, ErrStatusChanged
	}
	if !validID(id) {
		return Transaction{}, ErrNotFound
	}

	now := time.Now().UTC()
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `UPDATE transactions
        SET status = $3,
            updated_at = $4,
            failure_reason = CASE WHEN $3 = 'failed' THEN $5 ELSE failure_reason END,
            completed_at = CASE WHEN $3 IN ('success', 'failed') THEN $4 ELSE completed_at END
        WHERE id = $1::uuid AND status = $2
        RETURNING `+transactionColumns,
		id, string(from), string(to), now, failureReason)
	tx, err := scanTransaction(row)
	if errors.Is(err, ErrNotFound) {
		// distinguish a missing row from a lost status race
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Transaction{}, getErr
		}
		return Transaction{}, ErrStatusChanged
	}
	return tx, err
}

func (r *PostgresRepository) ListByWallets(ctx context.Context, walletIDs []string, limit, offset int) ([]Transaction, int, error) {
	limit, offset = normalizePage(limit, offset)
	ids := validIDs(walletIDs)
	if len(ids) == 0 {
		return []Transaction{}, 0, nil
	}

	conn := txn.Conn(ctx, r.db)
	const where = ` WHERE from_wallet_id = ANY($1::uuid[]) OR to_wallet_id = ANY($1::uuid[])`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, ids).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+where+`
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, ids, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *PostgresRepository) Search(ctx context.Context, filter Filter) ([]Transaction, int, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.WalletIDs != nil {
		ids := validIDs(filter.WalletIDs)
		if len(ids) == 0 {
			return []Transaction{}, 0, nil
		}
		p := arg(ids)
		conds = append(conds, "(from_wallet_id = ANY("+p+"::uuid[]) OR to_wallet_id = ANY("+p+"::uuid[]))")
	}
	if filter.Type != "" {
		conds = append(conds, "type = "+arg(string(filter.Type)))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.To))
	}
	if filter.MinAmount > 0 {
		conds = append(conds, "amount >= "+arg(filter.MinAmount))
	}
	if filter.MaxAmount > 0 {
		conds = append(conds, "amount <= "+arg(filter.MaxAmount))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *PostgresRepository) ListByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	if !validID(referenceID) {
		return []Transaction{}, nil
	}
	rows, err := txn.Conn(ctx, r.db).Query(ctx, `SELECT `+transactionColumns+`
        FROM transactions WHERE reference_id = $1::uuid ORDER BY created_at`, referenceID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *PostgresRepository) RefundedAmount(ctx context.Context, referenceID string) (int64, error) {
	if !validID(referenceID) {
		return 0, nil
	}
	var total int64
	err := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)
        FROM transactions
        WHERE reference_id = $1::uuid AND status = 'success' AND type IN ('refund', 'reversal')`,
		referenceID).Scan(&total)
	return total, err
}

func (r *PostgresRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := txn.Conn(ctx, r.db).Query(ctx, `SELECT `+transactionColumns+`
        FROM transactions
        WHERE status = 'pending' AND created_at < $1
        ORDER BY created_at LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx          Transaction
		txType      string
		status      string
		completedAt *time.Time
	)
	err := row.Scan(&tx.ID, &tx.IdempotencyKey, &tx.InitiatorID, &txType, &tx.Amount, &tx.Currency, &status,
		&tx.FromWalletID, &tx.ToWalletID, &tx.ReferenceID, &tx.ExternalReference, &tx.Description,
		&tx.FailureReason, &tx.CreatedAt, &tx.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	tx.Type = Type(txType)
	tx.Status = Status(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	if completedAt != nil {
		utc := completedAt.UTC()
		tx.CompletedAt = &utc
	}
	return tx, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	list := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, tx)
	}
	return list, rows.Err()
}
