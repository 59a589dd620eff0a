package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status in fulfillment order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// InvalidStatusError is returned for a status outside Statuses.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Status)
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Status: s}
}

// Order is a paid checkout.
type Order struct {
	ID            string
	SessionID     string
	Items         []Item
	Subtotal      decimal.Decimal
	Shipping      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string
	// PaymentRef is the processor's identifier for the payment and is unique
	// across orders.
	PaymentRef string
	// AmountPaid is what the processor settled, when it reports an amount.
	AmountPaid decimal.NullDecimal
	Status     Status
	CreatedAt  time.Time
}

// Underpaid reports whether the settled amount is below Total. The cart can
// grow while the customer is paying.
func (o *Order) Underpaid() bool {
	return o.AmountPaid.Valid && o.AmountPaid.Decimal.LessThan(o.Total)
}

// Item is a cart line frozen into an order.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores o. It returns ErrDuplicatePaymentRef when an order with
	// the same PaymentRef exists.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	// List returns orders newest first.
	List(ctx context.Context, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	// PaymentRefs returns the payment reference of every order.
	PaymentRefs(ctx context.Context) ([]string, error)
}
