package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getCartSQL = `SELECT value FROM cart_storage WHERE key = $1`

	setCartSQL = `INSERT INTO cart_storage (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
)

// KV stores cart documents in the cart_storage table.
type KV struct {
	pool *pgxpool.Pool
}

// NewKV returns a KV that uses the given pool.
func NewKV(pool *pgxpool.Pool) *KV {
	return &KV{pool: pool}
}

// Get returns the value stored under key.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, getCartSQL, key).Scan(&v)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrapf(err, "get %q", key)
	}
	return v, true, nil
}

// Set upserts value under key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	if _, err := s.pool.Exec(ctx, setCartSQL, key, value); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}
