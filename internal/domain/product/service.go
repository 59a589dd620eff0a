package product

import (
	"context"

	"github.com/go-faster/errors"
)

// Service applies storefront listing rules on top of a Repository.
type Service struct {
	products Repository
}

// NewService creates a catalog Service.
func NewService(products Repository) *Service {
	return &Service{products: products}
}

// List returns the products matching f. Featured and new-arrival listings
// are capped at their section size unless f sets a smaller limit.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	if f.Featured && (f.Limit <= 0 || f.Limit > FeaturedLimit) {
		f.Limit = FeaturedLimit
	}
	if f.NewArrival && (f.Limit <= 0 || f.Limit > NewLimit) {
		f.Limit = NewLimit
	}
	products, err := s.products.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Get returns the product with id.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// Related returns other products from the category of id.
func (s *Service) Related(ctx context.Context, id string) ([]Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	related, err := s.products.Related(ctx, p.ID, p.Category, RelatedLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "related to %s", id)
	}
	return related, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	return s.products.Create(ctx, p)
}

// Update validates and replaces an existing product.
func (s *Service) Update(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	return s.products.Update(ctx, p)
}

// Delete removes the product with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}

// ValidationError wraps a rejected admin payload.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
