package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nickmous/beanstash/internal/model"
)

// Field names a column that can be used for lookups.
type Field string

const (
	FieldUsername Field = "username"
	FieldEmail    Field = "email"
)

// Accounts is plain data access over the accounts table. It knows nothing
// about soft deletion: reads return deleted rows too. Use LiveAccounts for
// anything on the authentication path.
type Accounts interface {
	Get(ctx context.Context, id string) (model.Account, error)
	FindBy(ctx context.Context, field Field, value string) ([]model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Create(ctx context.Context, a *model.Account) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	MarkDeleted(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// DBTX is the subset of database/sql used by AccountRepo. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AccountRepo implements Accounts with database/sql. Queries only use `?`
// placeholders and portable SQL so the same code runs on MySQL and SQLite.
type AccountRepo struct{ DB DBTX }

var _ Accounts = (*AccountRepo)(nil)

func NewAccountRepo(db DBTX) *AccountRepo { return &AccountRepo{DB: db} }

const accountColumns = "id,username,email,password_hash,is_active,created_at,updated_at,deleted_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (model.Account, error) {
	var (
		a         model.Account
		deletedAt sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Active, &a.CreatedAt, &a.UpdatedAt, &deletedAt); err != nil {
		return model.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		a.DeletedAt = &t
	}
	return a, nil
}

// Get fetches a row by id, deleted or not.
func (r *AccountRepo) Get(ctx context.Context, id string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// FindBy returns every row whose field equals value, live rows first.
func (r *AccountRepo) FindBy(ctx context.Context, field Field, value string) ([]model.Account, error) {
	switch field {
	case FieldUsername, FieldEmail:
	default:
		return nil, fmt.Errorf("find account: unsupported field %q", field)
	}
	return r.query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE "+string(field)+"=? ORDER BY deleted_at IS NOT NULL, created_at",
		value)
}

// List returns every row ordered by creation time.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	return r.query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
}

func (r *AccountRepo) query(ctx context.Context, q string, args ...any) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

// Create inserts a. ID and timestamps must already be set.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (id,username,email,password_hash,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
		a.ID, a.Username, a.Email, a.PasswordHash, a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// SetActive flips the active flag of a live row.
func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET is_active=?, updated_at=? WHERE id=? AND deleted_at IS NULL",
		active, at, id)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeleted stamps deleted_at on a live row in a single statement, so a
// concurrent reader sees the row either before or after the change. It
// reports whether a row was changed.
func (r *AccountRepo) MarkDeleted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL",
		at, at, id)
	if err != nil {
		return false, fmt.Errorf("soft delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete account: %w", err)
	}
	return n > 0, nil
}

// Delete permanently removes the row. It reports whether a row existed.
func (r *AccountRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM accounts WHERE id=?", id)
	if err != nil {
		return false, fmt.Errorf("hard delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("hard delete account: %w", err)
	}
	return n > 0, nil
}

// isUniqueViolation recognises duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
