package cart

import (
	"math"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

var maxQuantity = decimal.NewFromInt(math.MaxInt32)

// maxDigits bounds the magnitude and scale of coerced numbers. Arithmetic on
// a decimal rescales it, so an exponent like 1e999999999 must never reach it.
const maxDigits = 18

var maxMagnitude = decimal.New(1, maxDigits)

// bound saturates v to ±1e18 and truncates it to 18 decimal places. Values
// smaller than 1e-18 become zero.
func bound(v decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return decimal.Zero
	}
	switch digits := intDigits(v); {
	case digits > maxDigits:
		if v.IsNegative() {
			return maxMagnitude.Neg()
		}
		return maxMagnitude
	case digits < -maxDigits:
		return decimal.Zero
	}
	if v.Exponent() < -maxDigits {
		// The coefficient has at least as many digits as the rescale removes.
		return v.Truncate(maxDigits)
	}
	return v
}

// intDigits is the number of digits before the decimal point of a non-zero
// v, or minus the number of leading fractional zeros when |v| < 1.
func intDigits(v decimal.Decimal) int {
	return v.NumDigits() + int(v.Exponent())
}

// ParseNumber converts s to a decimal the way a lenient numeric cast does:
// surrounding whitespace is ignored, the empty string is zero, and anything
// that does not parse as a number is zero.
func ParseNumber(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return bound(v)
}

// DecodeNumber reads the next JSON value from d and coerces it to a decimal.
// Numbers and numeric strings keep their value, true is 1, and false, null,
// objects, arrays and non-numeric strings are 0. The only error returned is
// a syntax error from the underlying decoder. Results are bounded to ±1e18
// with at most 18 decimal places.
func DecodeNumber(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(string(n))
		if err != nil {
			return decimal.Zero, nil
		}
		return bound(v), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return ParseNumber(s), nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return decimal.Zero, err
		}
		if b {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, d.Skip()
	}
}

// ToQuantity truncates v toward zero and clamps it into the int32 range.
func ToQuantity(v decimal.Decimal) int {
	if v.IsZero() {
		return 0
	}
	switch digits := intDigits(v); {
	case digits <= 0:
		return 0
	case digits > 10:
		if v.IsNegative() {
			return -math.MaxInt32
		}
		return math.MaxInt32
	}
	v = v.Truncate(0)
	switch {
	case v.GreaterThan(maxQuantity):
		return math.MaxInt32
	case v.LessThan(maxQuantity.Neg()):
		return -math.MaxInt32
	}
	return int(v.IntPart())
}
