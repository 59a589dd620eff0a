// Package cart implements the shopping cart: pure state transitions over an
// ordered list of lines, a tolerant persistence codec, and a per-session
// store that writes its state behind to a key-value side-channel.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/orvelix/internal/domain/product"
)

// Snapshot is the copy of product data taken when a product is added to the
// cart. Later catalog changes never reach an existing line.
type Snapshot struct {
	ProductID     string
	Name          string
	Brand         string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	Image         string
}

// SnapshotOf copies the cart-relevant fields of p.
func SnapshotOf(p product.Product) Snapshot {
	return Snapshot{
		ProductID:     p.ID,
		Name:          p.Name,
		Brand:         p.Brand,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.Image,
	}
}

// Line is one product in the cart. Quantity is always at least 1 for lines
// held in a State.
type Line struct {
	Snapshot
	Quantity int
}

// Subtotal returns price * quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// State is the cart contents. Items keep first-added order; Total is derived
// from Items and is only ever produced by newState.
type State struct {
	Items []Line
	Total decimal.Decimal
}

// Empty reports whether the cart has no lines.
func (s State) Empty() bool {
	return len(s.Items) == 0
}

// Count returns the total number of units across all lines.
func (s State) Count() int {
	n := 0
	for _, l := range s.Items {
		n += l.Quantity
	}
	return n
}

// Line returns the line for productID, if present.
func (s State) Line(productID string) (Line, bool) {
	if i := indexOf(s.Items, productID); i >= 0 {
		return s.Items[i], true
	}
	return Line{}, false
}

// clone returns a State whose Items slice can be modified freely.
func (s State) clone() State {
	return State{Items: slices.Clone(s.Items), Total: s.Total}
}

// newState builds a State over items, summing the total from scratch.
func newState(items []Line) State {
	total := decimal.Zero
	for _, l := range items {
		total = total.Add(l.Subtotal())
	}
	if items == nil {
		items = []Line{}
	}
	return State{Items: items, Total: total}
}

func indexOf(items []Line, productID string) int {
	return slices.IndexFunc(items, func(l Line) bool {
		return l.ProductID == productID
	})
}
