package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes p as a JSON object.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.StringFixed(2)))
	if p.OriginalPrice.Valid {
		e.FieldStart("originalPrice")
		e.Num(jx.Num(p.OriginalPrice.Decimal.StringFixed(2)))
	}
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("tags")
	e.ArrStart()
	for _, t := range p.Tags {
		e.Str(t)
	}
	e.ArrEnd()
	e.FieldStart("inStock")
	e.Bool(p.InStock)
	e.FieldStart("featured")
	e.Bool(p.Featured)
	e.FieldStart("newArrival")
	e.Bool(p.NewArrival)
	e.FieldStart("rating")
	e.Float64(p.Rating)
	e.FieldStart("reviewCount")
	e.Int(p.ReviewCount)
	e.ObjEnd()
}

// Decode reads a product object written by Encode. Missing fields keep
// their zero value, except InStock which defaults to true.
func (p *Product) Decode(d *jx.Decoder) error {
	*p = Product{InStock: true}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "originalPrice":
			if d.Next() == jx.Null {
				p.OriginalPrice = decimal.NullDecimal{}
				return d.Null()
			}
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			p.OriginalPrice = decimal.NewNullDecimal(v)
		case "image":
			p.Image, err = d.Str()
		case "tags":
			p.Tags = p.Tags[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				t, err := d.Str()
				p.Tags = append(p.Tags, t)
				return err
			})
		case "inStock":
			p.InStock, err = d.Bool()
		case "featured":
			p.Featured, err = d.Bool()
		case "newArrival":
			p.NewArrival, err = d.Bool()
		case "rating":
			p.Rating, err = d.Float64()
		case "reviewCount":
			p.ReviewCount, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// DecodeCatalog parses a JSON array of products.
func DecodeCatalog(data []byte) ([]Product, error) {
	var out []Product
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return out, nil
}

// maxExponent bounds the exponent of decoded prices in both directions.
const maxExponent = 18

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, errors.Errorf("number %q out of range", raw)
	}
	return v, nil
}
