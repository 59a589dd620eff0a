package product

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orvelix/db"
)

func TestDecodeCatalog_Seed(t *testing.T) {
	products, err := DecodeCatalog(db.Catalog)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	seen := make(map[string]bool, len(products))
	for _, p := range products {
		require.NoError(t, p.Validate(), p.ID)
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}

	vase := products[0]
	assert.Equal(t, "lifestyle-1", vase.ID)
	assert.True(t, decimal.RequireFromString("89.99").Equal(vase.Price))
	require.True(t, vase.OriginalPrice.Valid)
	assert.True(t, decimal.RequireFromString("119.99").Equal(vase.OriginalPrice.Decimal))
	assert.True(t, vase.Featured)
	assert.True(t, vase.NewArrival)
	assert.Contains(t, vase.Tags, "ceramic")
}

func TestProductJSON_RoundTrip(t *testing.T) {
	in := Product{
		ID:          "p1",
		Name:        "Lamp",
		Description: "Warm light",
		Brand:       "Lumen",
		Category:    "home-decor",
		Price:       decimal.RequireFromString("49.5"),
		Image:       "lamp.jpg",
		Tags:        []string{"light", "desk"},
		InStock:     false,
		Rating:      4.25,
		ReviewCount: 12,
	}

	var e jx.Encoder
	in.Encode(&e)
	assert.Contains(t, e.String(), `"price":49.50`)

	var out Product
	require.NoError(t, out.Decode(jx.DecodeBytes(e.Bytes())))
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.Price.Equal(out.Price))
	assert.False(t, out.OriginalPrice.Valid)
	assert.Equal(t, in.Tags, out.Tags)
	assert.False(t, out.InStock)
	assert.InDelta(t, 4.25, out.Rating, 1e-9)
	assert.Equal(t, 12, out.ReviewCount)
}

func TestProductDecode_Defaults(t *testing.T) {
	var p Product
	require.NoError(t, p.Decode(jx.DecodeStr(`{"id":"x","name":"X","price":"12.00","unknown":{"a":1}}`)))
	assert.True(t, p.InStock)
	assert.True(t, decimal.NewFromInt(12).Equal(p.Price))
}

func TestDecodeCatalog_Invalid(t *testing.T) {
	for _, data := range []string{
		`[{"id":"x","price":"cheap"}]`,
		`[{"id":"x","price":"1e999999999"}]`,
		`[{"id":"x","price":1e-999999999}]`,
		`[{"id":"x","price":10,"originalPrice":"5e40"}]`,
	} {
		_, err := DecodeCatalog([]byte(data))
		require.Error(t, err, data)
	}
}
