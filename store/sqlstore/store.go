package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/arturkam25/Codify"
)

const userColumns = `id, username, password_hash, is_admin, disabled, role, email, license_key, failed_attempts, recovery_code`

var _ codify.CredentialStore = (*Store)(nil)

// Store implements [codify.CredentialStore] over database/sql. Inside
// WithinTx the store is bound to the transaction and db is nil.
type Store struct {
	db      *sql.DB
	q       DBTX
	dialect Dialect
}

// New wraps an already opened database. Schema migrations are not run.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, q: db, dialect: dialect}
}

// DB returns the underlying pool, or nil for a transaction-bound store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL dialect in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the pool. It is a no-op inside a transaction.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return codify.ErrUserNotFound
	case isUniqueViolation(err):
		return codify.ErrAccountExists
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*codify.User, error) {
	u := &codify.User{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.Disabled,
		&u.Role,
		&u.Email,
		&u.LicenseKey,
		&u.FailedAttempts,
		&u.RecoveryCode,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, u codify.User) (int64, error) {
	query := `INSERT INTO users (username, password_hash, is_admin, disabled, role, email, license_key, failed_attempts, recovery_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{u.Username, u.PasswordHash, u.IsAdmin, u.Disabled, u.Role, u.Email, u.LicenseKey, u.FailedAttempts, u.RecoveryCode}

	if s.dialect == DialectPostgres {
		var id int64
		if err := s.queryRow(ctx, query+` RETURNING id`, args...).Scan(&id); err != nil {
			return 0, mapErr(err)
		}
		return id, nil
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (s *Store) getOne(ctx context.Context, where string, arg any) (*codify.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*codify.User, error) {
	return s.getOne(ctx, `id = ?`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*codify.User, error) {
	return s.getOne(ctx, `username = ?`, username)
}

// GetUserByEmail expects the caller to pass the lower-cased address, which
// is how addresses are stored.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*codify.User, error) {
	return s.getOne(ctx, `email = ?`, strings.ToLower(email))
}

func (s *Store) ListUsers(ctx context.Context) ([]codify.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY is_admin DESC, id ASC`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []codify.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return users, nil
}

func (s *Store) UpdateUserFields(ctx context.Context, id int64, patch codify.UserPatch) error {
	if patch.Empty() {
		return s.exists(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+` = ?`)
		args = append(args, value)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.IsAdmin != nil {
		add("is_admin", *patch.IsAdmin)
	}
	if patch.Disabled != nil {
		add("disabled", *patch.Disabled)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.LicenseKey != nil {
		add("license_key", *patch.LicenseKey)
	}
	if patch.FailedAttempts != nil {
		add("failed_attempts", *patch.FailedAttempts)
	}
	if patch.RecoveryCode != nil {
		add("recovery_code", *patch.RecoveryCode)
	}
	args = append(args, id)

	res, err := s.exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		// MySQL reports zero affected rows when nothing changed.
		return s.exists(ctx, id)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id int64) error {
	var one int
	if err := s.queryRow(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return codify.ErrUserNotFound
	}
	return nil
}

func (s *Store) FirstAdminID(ctx context.Context) (int64, bool, error) {
	var id sql.NullInt64
	if err := s.queryRow(ctx, `SELECT MIN(id) FROM users WHERE is_admin = TRUE`).Scan(&id); err != nil {
		return 0, false, mapErr(err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}

// IncrementFailedAttempts saturates in SQL so concurrent failures never push
// the counter past limit.
func (s *Store) IncrementFailedAttempts(ctx context.Context, id int64, limit int) (int, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	_, err := s.exec(ctx,
		`UPDATE users SET failed_attempts = CASE WHEN failed_attempts + 1 > ? THEN ? ELSE failed_attempts + 1 END WHERE id = ?`,
		limit, limit, id)
	if err != nil {
		return 0, mapErr(err)
	}

	var count int
	if err := s.queryRow(ctx, `SELECT failed_attempts FROM users WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// PromoteIfNoAdmin uses a derived table so MySQL accepts the self-reference.
func (s *Store) PromoteIfNoAdmin(ctx context.Context, id int64) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE users SET is_admin = TRUE, role = ? WHERE id = ? AND NOT EXISTS (SELECT 1 FROM (SELECT id FROM users WHERE is_admin = TRUE) AS admins)`,
		codify.RoleAdmin, id)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	if n > 0 {
		return true, nil
	}
	if err := s.exists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// WithinTx runs fn in a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx codify.CredentialStore) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}

	var fnErr error
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		fnErr = fn(ctx, &Store{q: tx, dialect: s.dialect})
		return fnErr
	})
	if err != nil && fnErr == nil {
		// begin or commit failed
		return mapErr(err)
	}
	return err
}
