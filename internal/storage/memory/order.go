package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/xenking/orvelix/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders in memory, unique by payment reference.
type OrderRepository struct {
	mu     sync.RWMutex
	byID   map[string]*order.Order
	byRef  map[string]string
	orders []string
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:  make(map[string]*order.Order),
		byRef: make(map[string]string),
	}
}

// Create stores a copy of o.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byRef[o.PaymentRef]; ok {
		return order.ErrDuplicatePaymentRef
	}
	rec := *o
	rec.Items = slices.Clone(o.Items)
	r.byID[o.ID] = &rec
	r.byRef[o.PaymentRef] = o.ID
	r.orders = append(r.orders, o.ID)
	return nil
}

// Get returns the order with id.
func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

// GetByPaymentRef returns the order paid with ref.
func (r *OrderRepository) GetByPaymentRef(_ context.Context, ref string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[ref]
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.get(id)
}

// List returns up to limit orders, newest first.
func (r *OrderRepository) List(_ context.Context, limit int) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0, min(limit, len(r.orders)))
	for _, id := range r.orders {
		out = append(out, *r.byID[id])
	}
	slices.SortStableFunc(out, func(a, b order.Order) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus sets the status of order id.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	rec := *o
	return &rec, nil
}

// PaymentRefs returns every stored payment reference.
func (r *OrderRepository) PaymentRefs(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.byRef))
	for ref := range r.byRef {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs, nil
}

func (r *OrderRepository) get(id string) (*order.Order, error) {
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	rec := *o
	rec.Items = slices.Clone(o.Items)
	return &rec, nil
}
