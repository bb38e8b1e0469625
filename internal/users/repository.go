package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accounts/internal/platform/db"
)

const uniqueViolation = "23505"

const userColumns = `id, full_name, username, email, created_at, updated_at, last_login, is_active`

// Repository defines the SQL level operations the store relies on.
// Lookups report absence through the boolean result, never through an error.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, rec NewRecord) (User, error)
	ListActive(ctx context.Context) ([]User, error)
	FindActive(ctx context.Context, id int64) (User, bool, error)
	FindCredentials(ctx context.Context, username string) (Credentials, bool, error)
	Update(ctx context.Context, id int64, changes Changes) (User, bool, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	SetLastLogin(ctx context.Context, id int64, at time.Time) error
	Ping(ctx context.Context) error
	Close()
}

// Dialer opens a Repository. Each call is a single connection attempt.
type Dialer func(ctx context.Context) (Repository, error)

// PostgresDialer returns a Dialer backed by a new pgx pool per attempt.
func PostgresDialer(cfg db.PoolConfig) Dialer {
	return func(ctx context.Context) (Repository, error) {
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPGRepository(pool), nil
	}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository wraps an established pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Stat exposes pool statistics for metrics.
func (r *PGRepository) Stat() *pgxpool.Stat {
	return r.pool.Stat()
}

// EnsureSchema creates the users table, its index and the timestamp trigger.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
			return fmt.Errorf("users: schema lock: %w", err)
		}
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("users: apply schema: %w", err)
			}
		}
		return nil
	})
}

// Insert stores a new user and returns the persisted record.
func (r *PGRepository) Insert(ctx context.Context, rec NewRecord) (User, error) {
	var user User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (full_name, username, email, password_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING `+userColumns,
			rec.FullName, rec.Username, rec.Email, rec.PasswordHash)
		var err error
		user, err = scanUser(row)
		return err
	})
	if err != nil {
		return User{}, translate(err)
	}
	return user, nil
}

// ListActive returns active users, newest first.
func (r *PGRepository) ListActive(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// FindActive fetches an active user by id.
func (r *PGRepository) FindActive(ctx context.Context, id int64) (User, bool, error) {
	return findActive(ctx, r.pool, id)
}

// FindCredentials fetches the id and hash of an active user by username.
func (r *PGRepository) FindCredentials(ctx context.Context, username string) (Credentials, bool, error) {
	var creds Credentials
	err := r.pool.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE username = $1 AND is_active`, username).
		Scan(&creds.ID, &creds.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, err
	}
	return creds, true, nil
}

// Update applies the supplied columns to an active user in one transaction.
// An empty change set only reads the current record.
func (r *PGRepository) Update(ctx context.Context, id int64, changes Changes) (User, bool, error) {
	if changes.IsEmpty() {
		return r.FindActive(ctx, id)
	}

	var setClauses []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.FullName != nil {
		set("full_name", *changes.FullName)
	}
	if changes.Email != nil {
		set("email", *changes.Email)
	}
	if changes.PasswordHash != nil {
		set("password_hash", *changes.PasswordHash)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d AND is_active RETURNING %s`,
		strings.Join(setClauses, ", "), len(args), userColumns)

	var user User
	found := true
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return User{}, false, translate(err)
	}
	if !found {
		return User{}, false, nil
	}
	return user, true, nil
}

// Deactivate soft deletes an active user and reports whether a row changed.
func (r *PGRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetLastLogin records a successful login for an active user. An older
// stamp never replaces a newer one.
func (r *PGRepository) SetLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = GREATEST(COALESCE(last_login, $2), $2) WHERE id = $1 AND is_active`, id, at.UTC())
	return err
}

// Ping checks pool liveness.
func (r *PGRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close waits for acquired connections to be released and closes the pool.
func (r *PGRepository) Close() {
	r.pool.Close()
}

func findActive(ctx context.Context, q querier, id int64) (User, bool, error) {
	user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return user, true, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
		&user.IsActive,
	)
	return user, err
}

// translate maps unique violations to DuplicateError and passes everything else through.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return &DuplicateError{Field: FieldUsername}
		case emailConstraint:
			return &DuplicateError{Field: FieldEmail}
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
