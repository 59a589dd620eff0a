package cart

import (
	"bytes"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ErrNotArray is returned by Decode when the document is valid JSON but not
// an array of lines.
var ErrNotArray = errors.New("cart document is not an array")

// Encode serializes lines as a JSON array of flat line objects.
func Encode(lines []Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("brand")
		e.Str(l.Brand)
		e.FieldStart("price")
		e.Num(jx.Num(l.Price.String()))
		if l.OriginalPrice.Valid {
			e.FieldStart("originalPrice")
			e.Num(jx.Num(l.OriginalPrice.Decimal.String()))
		}
		e.FieldStart("image")
		e.Str(l.Image)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// Decode parses a persisted cart document. Field values are coerced rather
// than validated: prices and quantities go through DecodeNumber, non-object
// elements are skipped, and unknown fields are ignored. Empty input decodes
// to no lines. Decode returns an error only when the document as a whole
// cannot be read; callers treat that as an empty cart. The returned lines
// are not yet sanitized, pass them through Load.
func Decode(data []byte) ([]Line, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, ErrNotArray
	}

	var lines []Line
	if err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		l, err := decodeLine(d)
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return lines, nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			l.ProductID, err = decodeText(d)
		case "name":
			l.Name, err = decodeText(d)
		case "brand":
			l.Brand, err = decodeText(d)
		case "image":
			l.Image, err = decodeText(d)
		case "price":
			l.Price, err = DecodeNumber(d)
		case "originalPrice":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			v, err = DecodeNumber(d)
			l.OriginalPrice = decimal.NewNullDecimal(v)
		case "quantity":
			var v decimal.Decimal
			v, err = DecodeNumber(d)
			l.Quantity = ToQuantity(v)
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

// decodeText reads a string field, keeping the literal text of numbers and
// dropping any other kind of value.
func decodeText(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	default:
		return "", d.Skip()
	}
}
