package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// MaxIdempotencyKeyLen caps client supplied keys.
const MaxIdempotencyKeyLen = 128

var (
	// ErrIdempotencyConflict means the key was already claimed in the module.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyKey rejects empty or oversized keys.
	ErrIdempotencyKey = errors.New("invalid idempotency key")
)

// IdempotencyStore claims request keys in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// CheckAndInsert claims key for module in its own statement.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	return claim(ctx, s.pool, key, module, s.now())
}

// ClaimKey claims key through a pool or a transaction. Inside a transaction the
// claim commits or rolls back together with the work it guards.
func ClaimKey(ctx context.Context, db execer, key, module string) error {
	return claim(ctx, db, key, module, time.Now())
}

func claim(ctx context.Context, db execer, key, module string, at time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > MaxIdempotencyKeyLen {
		return fmt.Errorf("%w: length must be 1-%d", ErrIdempotencyKey, MaxIdempotencyKeyLen)
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, at)
	if isUnique(err) {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	return nil
}

// Cleanup deletes keys claimed more than olderThan ago and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("idempotency cleanup: retention must be positive, got %s", olderThan)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("idempotency cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

var isUnique = db.IsUniqueViolation
