package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Sentinel errors for order validation and lookup.
var (
	ErrNotFound            = fmt.Errorf("order not found")
	ErrDuplicatePaymentRef = fmt.Errorf("payment reference already recorded")
	ErrEmptyItems          = fmt.Errorf("items required")
	ErrMissingPaymentRef   = fmt.Errorf("payment reference required")
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Service encapsulates order bookkeeping.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service over orders.
func NewService(orders Repository) *Service {
	return &Service{
		orders: orders,
		now:    time.Now,
	}
}

// Record stores o as a new pending order unless an order with the same
// payment reference already exists, in which case the existing order is
// returned and created is false.
func (s *Service) Record(ctx context.Context, o *Order) (_ *Order, created bool, _ error) {
	if len(o.Items) == 0 {
		return nil, false, ErrEmptyItems
	}
	if o.PaymentRef == "" {
		return nil, false, ErrMissingPaymentRef
	}

	existing, err := s.orders.GetByPaymentRef(ctx, o.PaymentRef)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, errors.Wrap(err, "get by payment ref")
	}

	rec := *o
	rec.ID = uuid.New().String()
	rec.Status = StatusPending
	rec.CreatedAt = s.now().UTC()
	rec.Subtotal = rec.Subtotal.Round(2)
	rec.Shipping = rec.Shipping.Round(2)
	rec.Tax = rec.Tax.Round(2)
	rec.Total = rec.Total.Round(2)

	if err := s.orders.Create(ctx, &rec); err != nil {
		if !errors.Is(err, ErrDuplicatePaymentRef) {
			return nil, false, errors.Wrap(err, "create order")
		}
		// Lost a race with a concurrent completion of the same payment.
		existing, err := s.orders.GetByPaymentRef(ctx, o.PaymentRef)
		if err != nil {
			return nil, false, errors.Wrap(err, "get by payment ref")
		}
		return existing, false, nil
	}
	return &rec, true, nil
}

// List returns up to limit orders, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	orders, err := s.orders.List(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves order id to the named status.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %s", id)
	}
	return o, nil
}

// Get returns the order with id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// GetByPaymentRef returns the order paid with ref.
func (s *Service) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	return s.orders.GetByPaymentRef(ctx, ref)
}

// PaymentRefs returns every recorded payment reference.
func (s *Service) PaymentRefs(ctx context.Context) ([]string, error) {
	return s.orders.PaymentRefs(ctx)
}
