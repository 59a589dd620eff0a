package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Method is the payment method chosen for a checkout. The set of methods is
// closed: CardPayment and WalletPayment.
type Method interface {
	// Kind is the wire name of the method.
	Kind() string
	method()
}

// CardPayment is paid through a CardProcessor with a client-side
// confirmation step.
type CardPayment struct{}

// WalletPayment is paid through a WalletProvider that takes the customer to
// its own approval page.
type WalletPayment struct{}

func (CardPayment) Kind() string   { return "card" }
func (WalletPayment) Kind() string { return "wallet" }

func (CardPayment) method()   {}
func (WalletPayment) method() {}

// UnknownMethodError is returned by ParseMethod for an unsupported name.
type UnknownMethodError struct {
	Name string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown payment method %q", e.Name)
}

// ParseMethod resolves a wire name to a Method. Provider names are accepted
// as aliases.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "card", "stripe":
		return CardPayment{}, nil
	case "wallet", "paypal":
		return WalletPayment{}, nil
	default:
		return nil, &UnknownMethodError{Name: name}
	}
}

// Intent is a payment started with a collaborator.
type Intent struct {
	// ID identifies the payment at the collaborator and is the reference the
	// client reports back on completion.
	ID string
	// ClientSecret confirms a card payment client-side.
	ClientSecret string
	// ApproveURL is where the customer approves a wallet payment.
	ApproveURL string
}

// Confirmation is a collaborator's report on a payment.
type Confirmation struct {
	Ref    string
	Paid   bool
	Amount decimal.Decimal
	// Owner is the tag the payment was created with.
	Owner string
}

// OwnerTag derives the tag that binds a payment to the session that started
// it. The session id itself never leaves the service.
func OwnerTag(sessionID string) string {
	sum := sha256.Sum256([]byte("orvelix-checkout:" + sessionID))
	return hex.EncodeToString(sum[:16])
}

// CardProcessor charges cards. Amounts are in minor units. The owner tag is
// stored with the payment and reported back by ConfirmPayment.
type CardProcessor interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, owner string) (Intent, error)
	ConfirmPayment(ctx context.Context, intentID string) (Confirmation, error)
}

// WalletProvider takes redirect-based wallet payments. Amounts are decimal
// major units. The owner tag is stored with the order and reported back by
// CaptureOrder.
type WalletProvider interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, owner string) (Intent, error)
	CaptureOrder(ctx context.Context, orderID string) (Confirmation, error)
}
