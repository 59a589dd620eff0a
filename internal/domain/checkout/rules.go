// Package checkout prices a cart and hands the payment to exactly one
// external collaborator, clearing the cart once that collaborator reports a
// settled payment.
package checkout

import (
	"github.com/shopspring/decimal"
)

// Rules are the fixed pricing rules applied to a cart subtotal.
type Rules struct {
	// FreeShippingOver is the subtotal that must be strictly exceeded for
	// shipping to be free.
	FreeShippingOver decimal.Decimal
	ShippingFee      decimal.Decimal
	TaxRate          decimal.Decimal
	Currency         string
	// MinCardAmount is the smallest card charge, in minor units.
	MinCardAmount int64
}

// DefaultRules returns the storefront's pricing rules.
func DefaultRules() Rules {
	return Rules{
		FreeShippingOver: decimal.NewFromInt(100),
		ShippingFee:      decimal.RequireFromString("15.99"),
		TaxRate:          decimal.RequireFromString("0.08"),
		Currency:         "usd",
		MinCardAmount:    50,
	}
}

// Summary is the priced breakdown of a cart.
type Summary struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices subtotal. Tax is rounded to cents.
func (r Rules) Quote(subtotal decimal.Decimal) Summary {
	shipping := r.ShippingFee
	if subtotal.GreaterThan(r.FreeShippingOver) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(r.TaxRate).Round(2)

	return Summary{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// MinorUnits returns the total in cents, rounded half away from zero.
func (s Summary) MinorUnits() int64 {
	return s.Total.Shift(2).Round(0).IntPart()
}
