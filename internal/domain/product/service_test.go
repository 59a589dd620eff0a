package product_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orvelix/db"
	"github.com/xenking/orvelix/internal/domain/product"
	"github.com/xenking/orvelix/internal/storage/memory"
)

func newCatalogService(t *testing.T) *product.Service {
	t.Helper()
	catalog, err := product.DecodeCatalog(db.Catalog)
	require.NoError(t, err)
	return product.NewService(memory.NewProductRepository(catalog))
}

func TestService_ListSections(t *testing.T) {
	svc := newCatalogService(t)
	ctx := context.Background()

	featured, err := svc.List(ctx, product.Filter{Featured: true})
	require.NoError(t, err)
	assert.NotEmpty(t, featured)
	assert.LessOrEqual(t, len(featured), product.FeaturedLimit)
	for _, p := range featured {
		assert.True(t, p.Featured, p.ID)
	}

	arrivals, err := svc.List(ctx, product.Filter{NewArrival: true})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(arrivals), product.NewLimit)
	for _, p := range arrivals {
		assert.True(t, p.NewArrival, p.ID)
	}
}

func TestService_Search(t *testing.T) {
	svc := newCatalogService(t)

	got, err := svc.List(context.Background(), product.Filter{Query: "YOGA"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, p := range got {
		assert.True(t, product.Filter{Query: "yoga"}.Matches(p), p.ID)
	}
}

func TestService_Related(t *testing.T) {
	svc := newCatalogService(t)
	ctx := context.Background()

	related, err := svc.Related(ctx, "lifestyle-1")
	require.NoError(t, err)
	assert.NotEmpty(t, related)
	assert.LessOrEqual(t, len(related), product.RelatedLimit)
	for _, p := range related {
		assert.NotEqual(t, "lifestyle-1", p.ID)
		assert.Equal(t, "lifestyle", p.Category)
	}

	_, err = svc.Related(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestService_AdminMutations(t *testing.T) {
	svc := newCatalogService(t)
	ctx := context.Background()

	lamp := &product.Product{ID: "home-99", Name: "Paper Lamp", Category: "home-decor", Price: decimal.RequireFromString("39.00"), InStock: true}
	require.NoError(t, svc.Create(ctx, lamp))
	require.ErrorIs(t, svc.Create(ctx, lamp), product.ErrAlreadyExists)

	lamp.Price = decimal.RequireFromString("35.00")
	require.NoError(t, svc.Update(ctx, lamp))
	got, err := svc.Get(ctx, "home-99")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.00").Equal(got.Price))

	require.NoError(t, svc.Delete(ctx, "home-99"))
	_, err = svc.Get(ctx, "home-99")
	require.ErrorIs(t, err, product.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "home-99"), product.ErrNotFound)
}

func TestService_RejectsInvalidProduct(t *testing.T) {
	svc := newCatalogService(t)

	err := svc.Create(context.Background(), &product.Product{ID: "x", Price: decimal.NewFromInt(-1), Name: "Bad"})
	var vErr *product.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "negative")
}
