package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrIdempotencyConflict is returned when a key has already been claimed.
var ErrIdempotencyConflict = errors.New("shared: idempotency key already claimed")

// IdempotencyStore claims keys in idempotency_keys. A claim made inside a
// transaction disappears on rollback, so a failed run can be retried.
type IdempotencyStore struct {
	db DBTX
}

func NewIdempotencyStore(db DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// CheckAndInsert claims key for scope. ON CONFLICT keeps the enclosing
// transaction usable after a duplicate.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.db == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(scope) == "" {
		return fmt.Errorf("%w: idempotency key and scope required", ErrInvalidInput)
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, scope)
	if err != nil {
		return fmt.Errorf("shared: claim %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	}
	return nil
}
