package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Lookup and mutation errors shared by every Repository.
var (
	ErrNotFound      = errors.New("product not found")
	ErrAlreadyExists = errors.New("product already exists")
)

// Listing caps used by the storefront sections.
const (
	FeaturedLimit = 8
	NewLimit      = 8
	RelatedLimit  = 4
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Description   string
	Brand         string
	Category      string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	Image         string
	Tags          []string
	InStock       bool
	Featured      bool
	NewArrival    bool
	Rating        float64
	ReviewCount   int
}

// Filter narrows a catalog listing. Zero values match everything.
type Filter struct {
	Category   string
	Query      string
	Featured   bool
	NewArrival bool
	Limit      int
}

// Matches reports whether p satisfies every set criterion of f. The query
// is matched case-insensitively against name, description, brand, category
// and tags.
func (f Filter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Featured && !p.Featured {
		return false
	}
	if f.NewArrival && !p.NewArrival {
		return false
	}
	if f.Query == "" {
		return true
	}

	q := strings.ToLower(f.Query)
	for _, field := range []string{p.Name, p.Description, p.Brand, p.Category} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Validate checks the fields an admin must supply when creating or
// replacing a product.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return errors.New("product id required")
	case strings.TrimSpace(p.Name) == "":
		return errors.New("product name required")
	case p.Price.IsNegative():
		return errors.New("product price must not be negative")
	}
	return nil
}

// Repository defines catalog reads and the admin mutations.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Related(ctx context.Context, id, category string, limit int) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
