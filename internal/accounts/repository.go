package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	Create(ctx context.Context, a Account) (Account, error)
}

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) Create(ctx context.Context, a Account) (Account, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO accounts (name, email, password_hash) VALUES ($1, $2, $3)
RETURNING id, created_at, updated_at`, a.Name, strings.ToLower(a.Email), a.PasswordHash).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("accounts: insert: %w", err)
	}
	return a, nil
}

const accountColumns = `id, name, email, password_hash, created_at, updated_at`

// FindByEmail fetches an account by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, strings.ToLower(email)))
}

// UpdatePassword replaces the password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) scan(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}
