package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "carts.db")

	kv, err := Open(ctx, path)
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, "s1/orvelix-cart")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "s1/orvelix-cart", `[{"id":"a","quantity":1}]`))
	require.NoError(t, kv.Set(ctx, "s1/orvelix-cart", `[{"id":"a","quantity":2}]`))

	v, ok, err := kv.Get(ctx, "s1/orvelix-cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a","quantity":2}]`, v)
	require.NoError(t, kv.Ping(ctx))
	require.NoError(t, kv.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	v, ok, err = reopened.Get(ctx, "s1/orvelix-cart")
	require.NoError(t, err)
	assert.True(t, ok, "values survive reopening")
	assert.Equal(t, `[{"id":"a","quantity":2}]`, v)
}
