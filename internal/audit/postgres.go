package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/txn"
)

// PostgresRepository stores audit entries in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed audit log.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("invalid audit id %q: %w", entry.ID, err)
	}
	_, err = txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO audit_logs
        (id, actor_id, action, resource_type, resource_id, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, entry.ActorID, string(entry.Action), entry.ResourceType, entry.ResourceID, entry.Description, entry.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ActorID != "" {
		conds = append(conds, "actor_id = "+arg(filter.ActorID))
	}
	if filter.ResourceID != "" {
		conds = append(conds, "resource_id = "+arg(filter.ResourceID))
	}
	if filter.Action != "" {
		conds = append(conds, "action = "+arg(string(filter.Action)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT id, actor_id, action, resource_type, resource_id, description, created_at
        FROM audit_logs`+where+` ORDER BY created_at DESC LIMIT `+arg(limit)+` OFFSET `+arg(offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e      Entry
			id     uuid.UUID
			action string
		)
		if err := rows.Scan(&id, &e.ActorID, &action, &e.ResourceType, &e.ResourceID, &e.Description, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.ID = id.String()
		e.Action = Action(action)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
