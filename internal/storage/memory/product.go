package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/orvelix/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository keeps the catalog in insertion order.
type ProductRepository struct {
	mu       sync.RWMutex
	products []product.Product
}

// NewProductRepository returns a repository holding a copy of products.
func NewProductRepository(products []product.Product) *ProductRepository {
	return &ProductRepository{products: slices.Clone(products)}
}

// List returns the products matching f in catalog order.
func (r *ProductRepository) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0)
	for _, p := range r.products {
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetByID returns the product with id.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(id)
	if i < 0 {
		return nil, product.ErrNotFound
	}
	p := r.products[i]
	return &p, nil
}

// Related returns up to limit other products of category.
func (r *ProductRepository) Related(ctx context.Context, id, category string, limit int) ([]product.Product, error) {
	all, err := r.List(ctx, product.Filter{Category: category})
	if err != nil {
		return nil, err
	}
	out := make([]product.Product, 0, limit)
	for _, p := range all {
		if len(out) == limit {
			break
		}
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create appends p to the catalog.
func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(p.ID) >= 0 {
		return product.ErrAlreadyExists
	}
	r.products = append(r.products, *p)
	return nil
}

// Update replaces the product with p.ID.
func (r *ProductRepository) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(p.ID)
	if i < 0 {
		return product.ErrNotFound
	}
	r.products[i] = *p
	return nil
}

// Delete removes the product with id.
func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return product.ErrNotFound
	}
	r.products = slices.Delete(r.products, i, i+1)
	return nil
}

func (r *ProductRepository) index(id string) int {
	return slices.IndexFunc(r.products, func(p product.Product) bool { return p.ID == id })
}
