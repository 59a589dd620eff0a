package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/internal/domain/order"
)

// Sentinel errors returned before any collaborator is invoked.
var (
	ErrEmptyCart         = fmt.Errorf("cart is empty")
	ErrAmountTooSmall    = fmt.Errorf("amount must be at least $0.50")
	ErrMethodUnavailable = fmt.Errorf("payment method is not configured")
)

// ErrForeignPayment is wrapped by the *PaymentError for a completion whose
// payment was started by another session.
var ErrForeignPayment = fmt.Errorf("payment was started by another session")

// PaymentError is a failure reported by, or while talking to, a payment
// collaborator. The cart is unchanged and the checkout may be retried.
type PaymentError struct {
	Method string
	// Message is safe to show to the customer.
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s payment: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("%s payment: %s: %v", e.Method, e.Message, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// Retryable reports whether the customer may submit the payment again.
func (e *PaymentError) Retryable() bool { return true }

// Carts is the cart access checkout needs.
type Carts interface {
	Snapshot(ctx context.Context, sessionID string) cart.State
	Clear(ctx context.Context, sessionID string)
}

// Orders records settled payments.
type Orders interface {
	Record(ctx context.Context, o *order.Order) (*order.Order, bool, error)
	GetByPaymentRef(ctx context.Context, ref string) (*order.Order, error)
	PaymentRefs(ctx context.Context) ([]string, error)
}

// Session is a started checkout.
type Session struct {
	Method  Method
	Summary Summary
	Intent  Intent
}

// Params configures a Service. Card and Wallet may be nil when the method
// is not offered.
type Params struct {
	Rules          Rules
	Carts          Carts
	Orders         Orders
	Card           CardProcessor
	Wallet         WalletProvider
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service prices carts and drives payments to completion.
type Service struct {
	rules  Rules
	carts  Carts
	orders Orders
	card   CardProcessor
	wallet WalletProvider
	tracer trace.Tracer

	mu      sync.Mutex
	settled *bloom.BloomFilter

	begun     metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

const settledEstimate = 100_000

// NewService creates a checkout Service.
func NewService(p Params) (*Service, error) {
	meter := p.MeterProvider.Meter("orvelix/checkout")

	begun, err := meter.Int64Counter("checkout.begun",
		metric.WithDescription("Checkouts handed to a payment collaborator"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create begun counter")
	}
	completed, err := meter.Int64Counter("checkout.completed",
		metric.WithDescription("Checkouts with a settled payment"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	failed, err := meter.Int64Counter("checkout.failed",
		metric.WithDescription("Checkouts that failed at a payment collaborator"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		rules:     p.Rules,
		carts:     p.Carts,
		orders:    p.Orders,
		card:      p.Card,
		wallet:    p.Wallet,
		tracer:    p.TracerProvider.Tracer("orvelix/checkout"),
		settled:   bloom.NewWithEstimates(settledEstimate, 0.001),
		begun:     begun,
		completed: completed,
		failed:    failed,
	}, nil
}

// Rules returns the pricing rules in effect.
func (s *Service) Rules() Rules {
	return s.rules
}

// Warm loads the references of already recorded payments.
func (s *Service) Warm(ctx context.Context) error {
	refs, err := s.orders.PaymentRefs(ctx)
	if err != nil {
		return errors.Wrap(err, "load payment refs")
	}
	s.mu.Lock()
	for _, ref := range refs {
		s.settled.AddString(ref)
	}
	s.mu.Unlock()

	zctx.From(ctx).Info("Settled payments loaded", zap.Int("count", len(refs)))
	return nil
}

// Methods returns the payment methods that are configured.
func (s *Service) Methods() []Method {
	var out []Method
	if s.card != nil {
		out = append(out, CardPayment{})
	}
	if s.wallet != nil {
		out = append(out, WalletPayment{})
	}
	return out
}

// Quote prices the current cart of sessionID.
func (s *Service) Quote(ctx context.Context, sessionID string) (cart.State, Summary) {
	state := s.carts.Snapshot(ctx, sessionID)
	return state, s.rules.Quote(state.Total)
}

// Begin prices the cart of sessionID and starts a payment with the
// collaborator behind m. An empty cart fails with ErrEmptyCart without
// contacting any collaborator.
func (s *Service) Begin(ctx context.Context, sessionID string, m Method) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Begin",
		trace.WithAttributes(attribute.String("payment.method", m.Kind())),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	state, summary := s.Quote(ctx, sessionID)
	if state.Empty() {
		return nil, ErrEmptyCart
	}

	var (
		intent Intent
		err    error
	)
	switch m.(type) {
	case CardPayment:
		if s.card == nil {
			return nil, ErrMethodUnavailable
		}
		amount := summary.MinorUnits()
		if amount < s.rules.MinCardAmount {
			return nil, ErrAmountTooSmall
		}
		intent, err = s.card.CreatePaymentIntent(ctx, amount, s.rules.Currency, OwnerTag(sessionID))
	case WalletPayment:
		if s.wallet == nil {
			return nil, ErrMethodUnavailable
		}
		intent, err = s.wallet.CreateOrder(ctx, summary.Total, s.rules.Currency, OwnerTag(sessionID))
	default:
		return nil, &UnknownMethodError{Name: m.Kind()}
	}
	if err != nil {
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", m.Kind()), attribute.String("stage", "begin")))
		return nil, &PaymentError{
			Method:  m.Kind(),
			Message: "Failed to initialize payment. Please try again.",
			Err:     err,
		}
	}

	s.begun.Add(ctx, 1, metric.WithAttributes(attribute.String("method", m.Kind())))
	zctx.From(ctx).Info("Checkout started",
		zap.String("method", m.Kind()),
		zap.String("intent", intent.ID),
		zap.String("total", summary.Total.StringFixed(2)),
	)
	return &Session{Method: m, Summary: summary, Intent: intent}, nil
}

// Callbacks returns the completion contract for a checkout of sessionID
// paid with m.
func (s *Service) Callbacks(sessionID string, m Method) *Completion {
	return &Completion{svc: s, sessionID: sessionID, method: m}
}

// Completion receives the outcome a payment collaborator reported to the
// customer. Exactly one of OnSuccess or OnError is expected per attempt.
type Completion struct {
	svc       *Service
	sessionID string
	method    Method
}

// OnSuccess verifies c with the collaborator, records the order and clears
// the cart. A payment that was already recorded returns its order without
// touching the cart again. A payment started by another session, and any
// verification failure, leaves the cart as is and is returned as a
// *PaymentError.
func (c *Completion) OnSuccess(ctx context.Context, conf Confirmation) (_ *order.Order, rerr error) {
	s := c.svc
	kind := c.method.Kind()
	ctx, span := s.tracer.Start(ctx, "checkout.OnSuccess",
		trace.WithAttributes(
			attribute.String("payment.method", kind),
			attribute.String("payment.ref", conf.Ref),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if conf.Ref == "" {
		return nil, c.fail(ctx, "verify", "Payment reference is missing.", nil)
	}

	if existing, ok, err := s.lookupSettled(ctx, conf.Ref); err != nil {
		return nil, errors.Wrap(err, "lookup settled payment")
	} else if ok {
		if existing.SessionID != c.sessionID {
			return nil, c.foreign(ctx, conf.Ref)
		}
		return existing, nil
	}

	verified, err := s.verify(ctx, c.method, conf.Ref)
	if err != nil {
		return nil, c.fail(ctx, "verify", "Could not confirm payment. Please try again.", err)
	}
	if verified.Owner != OwnerTag(c.sessionID) {
		return nil, c.foreign(ctx, conf.Ref)
	}
	if !verified.Paid {
		return nil, c.fail(ctx, "verify", "Payment was not completed. Please try again.", nil)
	}

	state, summary := s.Quote(ctx, c.sessionID)
	lg := zctx.From(ctx)
	rec := newOrder(c.sessionID, kind, conf.Ref, state, summary)
	if !verified.Amount.IsZero() {
		rec.AmountPaid = decimal.NewNullDecimal(verified.Amount)
		if !verified.Amount.Equal(summary.Total) {
			// The cart changed while the customer was paying.
			lg.Warn("Settled amount differs from cart total",
				zap.String("ref", conf.Ref),
				zap.String("paid", verified.Amount.StringFixed(2)),
				zap.String("total", summary.Total.StringFixed(2)),
				zap.Bool("underpaid", rec.Underpaid()),
			)
		}
	}

	o, created, err := s.orders.Record(ctx, rec)
	if err != nil {
		return nil, errors.Wrap(err, "record order")
	}
	if o.SessionID != c.sessionID {
		return nil, c.foreign(ctx, conf.Ref)
	}

	s.mu.Lock()
	s.settled.AddString(conf.Ref)
	s.mu.Unlock()

	if created {
		s.carts.Clear(ctx, c.sessionID)
		s.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", kind)))
		lg.Info("Checkout completed",
			zap.String("order", o.ID),
			zap.String("method", kind),
			zap.String("ref", conf.Ref),
		)
	}
	return o, nil
}

// OnError records a failure the collaborator reported to the customer. The
// cart is left untouched.
func (c *Completion) OnError(ctx context.Context, err error) error {
	return c.fail(ctx, "confirm", "Payment failed. Please try again.", err)
}

// foreign rejects a payment reference that another session started.
func (c *Completion) foreign(ctx context.Context, ref string) *PaymentError {
	return c.fail(ctx, "verify", "Payment does not belong to this checkout.",
		errors.Wrapf(ErrForeignPayment, "payment %s", ref))
}

func (c *Completion) fail(ctx context.Context, stage, message string, err error) *PaymentError {
	kind := c.method.Kind()
	c.svc.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", kind), attribute.String("stage", stage)))
	zctx.From(ctx).Warn("Payment failed",
		zap.String("method", kind),
		zap.String("stage", stage),
		zap.String("message", message),
		zap.Error(err),
	)
	return &PaymentError{Method: kind, Message: message, Err: err}
}

// lookupSettled returns the order already recorded for ref. The bloom
// filter answers most misses without a storage round trip.
func (s *Service) lookupSettled(ctx context.Context, ref string) (*order.Order, bool, error) {
	s.mu.Lock()
	maybe := s.settled.TestString(ref)
	s.mu.Unlock()
	if !maybe {
		return nil, false, nil
	}

	o, err := s.orders.GetByPaymentRef(ctx, ref)
	switch {
	case err == nil:
		return o, true, nil
	case errors.Is(err, order.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (s *Service) verify(ctx context.Context, m Method, ref string) (Confirmation, error) {
	switch m.(type) {
	case CardPayment:
		if s.card == nil {
			return Confirmation{}, ErrMethodUnavailable
		}
		return s.card.ConfirmPayment(ctx, ref)
	case WalletPayment:
		if s.wallet == nil {
			return Confirmation{}, ErrMethodUnavailable
		}
		return s.wallet.CaptureOrder(ctx, ref)
	default:
		return Confirmation{}, &UnknownMethodError{Name: m.Kind()}
	}
}

func newOrder(sessionID, method, ref string, state cart.State, summary Summary) *order.Order {
	items := make([]order.Item, len(state.Items))
	for i, l := range state.Items {
		items[i] = order.Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		}
	}
	return &order.Order{
		SessionID:     sessionID,
		Items:         items,
		Subtotal:      summary.Subtotal,
		Shipping:      summary.Shipping,
		Tax:           summary.Tax,
		Total:         summary.Total,
		PaymentMethod: method,
		PaymentRef:    ref,
	}
}
