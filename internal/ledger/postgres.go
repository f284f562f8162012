package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/txn"
)

const entryColumns = `id, seq, transaction_id, wallet_id, entry_type, amount, balance_before, balance_after, description, created_at`

// PostgresStore persists ledger entries in PostgreSQL. Writes join the unit
// of work carried by the context when there is one.
type PostgresStore struct {
	db *pgxpool.Pool
	tx *txn.Postgres
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, tx: txn.NewPostgres(db)}
}

func (s *PostgresStore) AppendEntries(ctx context.Context, entries []Entry) error {
	if err := validateBatch(entries); err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for i := range entries {
			e := &entries[i]
			id, err := uuid.Parse(e.ID)
			if err != nil {
				return apperr.Validation("invalid entry id %q", e.ID)
			}
			txID, err := uuid.Parse(e.TransactionID)
			if err != nil {
				return apperr.Validation("invalid transaction id %q", e.TransactionID)
			}
			walletID, err := uuid.Parse(e.WalletID)
			if err != nil {
				return apperr.Validation("invalid wallet id %q", e.WalletID)
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now().UTC()
			}
			batch.Queue(`INSERT INTO ledger_entries
                (id, transaction_id, wallet_id, entry_type, amount, balance_before, balance_after, description, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING seq`,
				id, txID, walletID, string(e.Type), e.Amount, e.BalanceBefore, e.BalanceAfter, e.Description, e.CreatedAt)
		}

		br := txn.Conn(ctx, s.db).SendBatch(ctx, batch)
		for i := range entries {
			if err := br.QueryRow().Scan(&entries[i].Seq); err != nil {
				br.Close()
				return fmt.Errorf("insert ledger entry %s: %w", entries[i].ID, err)
			}
		}
		return br.Close()
	})
}

func (s *PostgresStore) EntriesForWallet(ctx context.Context, walletID string, limit, offset int) (Page, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Page{Entries: []Entry{}}, nil
	}
	return s.Search(ctx, Filter{WalletIDs: []string{id.String()}, Limit: limit, Offset: offset})
}

func (s *PostgresStore) EntriesForTransaction(ctx context.Context, transactionID string) ([]Entry, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return []Entry{}, nil
	}
	rows, err := txn.Conn(ctx, s.db).Query(ctx, `SELECT `+entryColumns+`
        FROM ledger_entries WHERE transaction_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PostgresStore) RecomputeBalance(ctx context.Context, walletID string) (int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return 0, apperr.Validation("invalid wallet id %q", walletID)
	}
	const query = `
        SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
        FROM ledger_entries
        WHERE wallet_id = $1`
	var balance int64
	if err := txn.Conn(ctx, s.db).QueryRow(ctx, query, id).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) Search(ctx context.Context, filter Filter) (Page, error) {
	limit, offset := NormalizePage(filter.Limit, filter.Offset)

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.WalletIDs) > 0 {
		ids := make([]string, 0, len(filter.WalletIDs))
		for _, raw := range filter.WalletIDs {
			if id, err := uuid.Parse(raw); err == nil {
				ids = append(ids, id.String())
			}
		}
		if len(ids) == 0 {
			return Page{Entries: []Entry{}}, nil
		}
		conds = append(conds, "wallet_id = ANY("+arg(ids)+"::uuid[])")
	}
	if filter.TransactionID != "" {
		id, err := uuid.Parse(filter.TransactionID)
		if err != nil {
			return Page{Entries: []Entry{}}, nil
		}
		conds = append(conds, "transaction_id = "+arg(id))
	}
	if filter.EntryType != "" {
		conds = append(conds, "entry_type = "+arg(string(filter.EntryType)))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.To))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := txn.Conn(ctx, s.db)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries`+where, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries` + where +
		` ORDER BY created_at, seq LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return Page{}, err
	}
	return Page{Entries: entries, Total: total}, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                  Entry
			id, txID, walletID uuid.UUID
			entryType          string
		)
		if err := rows.Scan(&id, &e.Seq, &txID, &walletID, &entryType, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.TransactionID = txID.String()
		e.WalletID = walletID.String()
		e.Type = EntryType(entryType)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
