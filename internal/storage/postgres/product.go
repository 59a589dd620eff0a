package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orvelix/internal/domain/product"
)

const productColumns = `id, name, description, brand, category, price, original_price, image,
	tags, in_stock, featured, new_arrival, rating, review_count`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR category = $1)
		  AND (NOT $2 OR featured)
		  AND (NOT $3 OR new_arrival)
		  AND ($4 = '' OR name ILIKE $4 OR description ILIKE $4 OR brand ILIKE $4
		       OR category ILIKE $4 OR EXISTS (SELECT 1 FROM unnest(tags) t WHERE t ILIKE $4))
		ORDER BY seq
		LIMIT NULLIF($5, 0)`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	relatedProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE category = $1 AND id <> $2
		ORDER BY seq
		LIMIT $3`

	insertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, brand = $4, category = $5,
		price = $6, original_price = $7, image = $8, tags = $9, in_stock = $10, featured = $11,
		new_arrival = $12, rating = $13, review_count = $14
		WHERE id = $1`

	upsertProductSQL = insertProductSQL + `
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			brand = EXCLUDED.brand, category = EXCLUDED.category, price = EXCLUDED.price,
			original_price = EXCLUDED.original_price, image = EXCLUDED.image, tags = EXCLUDED.tags,
			in_stock = EXCLUDED.in_stock, featured = EXCLUDED.featured,
			new_arrival = EXCLUDED.new_arrival, rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the products matching f in catalog order.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL,
		f.Category, f.Featured, f.NewArrival, likePattern(f.Query), f.Limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Related returns up to limit other products of category.
func (r *ProductRepository) Related(ctx context.Context, id, category string, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, relatedProductsSQL, category, id, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "related products of %q", id)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts p.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if _, err := r.pool.Exec(ctx, insertProductSQL, productArgs(p)...); err != nil {
		if isUniqueViolation(err) {
			return product.ErrAlreadyExists
		}
		return errors.Wrapf(err, "create product %q", p.ID)
	}
	return nil
}

// Update replaces the product with p.ID.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, productArgs(p)...)
	if err != nil {
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts p or replaces the product with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, productArgs(p)...); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// Delete removes the product with id.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func productArgs(p *product.Product) []any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		p.ID, p.Name, p.Description, p.Brand, p.Category, p.Price, p.OriginalPrice, p.Image,
		tags, p.InStock, p.Featured, p.NewArrival, p.Rating, p.ReviewCount,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Brand, &p.Category, &p.Price, &p.OriginalPrice, &p.Image,
		&p.Tags, &p.InStock, &p.Featured, &p.NewArrival, &p.Rating, &p.ReviewCount,
	)
	return p, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a search query into a substring ILIKE pattern.
func likePattern(q string) string {
	if q == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(q) + "%"
}
