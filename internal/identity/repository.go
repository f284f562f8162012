package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bayarin/bayarin/internal/txn"
)

// Repository persists users and admins.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// UpdatePIN replaces the user's PIN hash.
	UpdatePIN(ctx context.Context, id string, pinHash []byte) error
	// Search matches query case-insensitively against email, phone and full
	// name, newest first, and returns the total match count.
	Search(ctx context.Context, query string, limit, offset int) ([]User, int, error)
	CreateAdmin(ctx context.Context, admin Admin) error
	FindAdminByUsername(ctx context.Context, username string) (Admin, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO users (id, email, phone, full_name, password_hash, pin_hash, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, user.Email, user.Phone, user.FullName, user.PasswordHash, user.PINHash, user.Status, user.CreatedAt.UTC())
	if txn.IsUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

const userColumns = `id, email, phone, full_name, password_hash, pin_hash, status, created_at`

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UpdatePIN replaces the user's PIN hash.
func (r *PostgresRepository) UpdatePIN(ctx context.Context, id string, pinHash []byte) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	tag, err := txn.Conn(ctx, r.db).Exec(ctx, `UPDATE users SET pin_hash = $2 WHERE id = $1`, userID, pinHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Search matches users by email, phone or name.
func (r *PostgresRepository) Search(ctx context.Context, query string, limit, offset int) ([]User, int, error) {
	pattern := "%" + escapeLike(query) + "%"
	const where = ` WHERE email ILIKE $1 OR phone ILIKE $1 OR full_name ILIKE $1`

	conn := txn.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users`+where+`
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CreateAdmin inserts a back-office account.
func (r *PostgresRepository) CreateAdmin(ctx context.Context, admin Admin) error {
	adminID, err := uuid.Parse(admin.ID)
	if err != nil {
		return err
	}
	_, err = txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO admins (id, username, password_hash, role, created_at)
        VALUES ($1, $2, $3, $4, $5)`, adminID, admin.Username, admin.PasswordHash, string(admin.Role), admin.CreatedAt.UTC())
	if txn.IsUniqueViolation(err) {
		return ErrAdminExists
	}
	return err
}

// FindAdminByUsername fetches an admin by username.
func (r *PostgresRepository) FindAdminByUsername(ctx context.Context, username string) (Admin, error) {
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT id, username, password_hash, role, created_at
        FROM admins WHERE username = $1`, username)
	var (
		a    Admin
		id   uuid.UUID
		role string
	)
	if err := row.Scan(&id, &a.Username, &a.PasswordHash, &role, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, ErrAdminNotFound
		}
		return Admin{}, err
	}
	a.ID = id.String()
	a.Role = Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u  User
		id uuid.UUID
	)
	if err := row.Scan(&id, &u.Email, &u.Phone, &u.FullName, &u.PasswordHash, &u.PINHash, &u.Status, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.ID = id.String()
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
