package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orvelix/internal/domain/auth"
	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/internal/domain/checkout"
	"github.com/xenking/orvelix/internal/domain/order"
	"github.com/xenking/orvelix/internal/domain/product"
)

// apiError is the JSON error body {"code","message"}. Redirect and
// Retryable are only written when set.
type apiError struct {
	Code      int
	Message   string
	Redirect  string
	Retryable bool
}

func (e *apiError) Error() string { return e.Message }

func (e *apiError) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Code)
	enc.FieldStart("message")
	enc.Str(e.Message)
	if e.Redirect != "" {
		enc.FieldStart("redirect")
		enc.Str(e.Redirect)
	}
	if e.Retryable {
		enc.FieldStart("retryable")
		enc.Bool(true)
	}
	enc.ObjEnd()
}

func badRequest(format string, args ...any) *apiError {
	return &apiError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// toAPIError maps domain errors to their HTTP representation. Unknown
// errors become a 500 whose details are only logged.
func toAPIError(err error) (*apiError, bool) {
	var (
		apiErr     *apiError
		validErr   *product.ValidationError
		statusErr  *order.InvalidStatusError
		methodErr  *checkout.UnknownMethodError
		paymentErr *checkout.PaymentError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr, true
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Message: rootMessage(err)}, true
	case errors.Is(err, product.ErrAlreadyExists):
		return &apiError{Code: http.StatusConflict, Message: product.ErrAlreadyExists.Error()}, true
	case errors.As(err, &validErr), errors.As(err, &statusErr):
		return &apiError{Code: http.StatusUnprocessableEntity, Message: rootMessage(err)}, true
	case errors.Is(err, auth.ErrUnauthorized):
		return &apiError{Code: http.StatusUnauthorized, Message: auth.ErrUnauthorized.Error()}, true
	case errors.Is(err, checkout.ErrEmptyCart):
		return &apiError{Code: http.StatusConflict, Message: checkout.ErrEmptyCart.Error(), Redirect: "/cart"}, true
	case errors.Is(err, checkout.ErrAmountTooSmall), errors.Is(err, checkout.ErrMethodUnavailable):
		return &apiError{Code: http.StatusUnprocessableEntity, Message: rootMessage(err)}, true
	case errors.As(err, &methodErr):
		return &apiError{Code: http.StatusBadRequest, Message: methodErr.Error()}, true
	case errors.As(err, &paymentErr):
		return &apiError{
			Code:      http.StatusPaymentRequired,
			Message:   paymentErr.Message,
			Retryable: paymentErr.Retryable(),
		}, true
	}
	return &apiError{Code: http.StatusInternalServerError, Message: "internal error"}, false
}

// rootMessage returns the message of the innermost error in the chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, known := toAPIError(err)
	if !known {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, apiErr.Code, apiErr.Encode)
}

func writeJSON(w http.ResponseWriter, status int, encode func(*jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a size-limited JSON object from r, calling field for
// every key.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	if err := d.Obj(field); err != nil {
		var (
			apiErr *apiError
			maxErr *http.MaxBytesError
		)
		switch {
		case errors.As(err, &apiErr):
			return apiErr
		case errors.As(err, &maxErr):
			return &apiError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func (h *Handler) encodeCart(e *jx.Encoder, s cart.State, summary checkout.Summary) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range s.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("brand")
		e.Str(l.Brand)
		e.FieldStart("price")
		money(e, l.Price)
		if l.OriginalPrice.Valid {
			e.FieldStart("originalPrice")
			money(e, l.OriginalPrice.Decimal)
		}
		e.FieldStart("image")
		e.Str(h.imageURL(l.Image))
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("subtotal")
		money(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("count")
	e.Int(s.Count())
	e.FieldStart("total")
	money(e, s.Total)
	e.FieldStart("summary")
	encodeSummary(e, summary)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s checkout.Summary) {
	e.ObjStart()
	e.FieldStart("subtotal")
	money(e, s.Subtotal)
	e.FieldStart("shipping")
	money(e, s.Shipping)
	e.FieldStart("tax")
	money(e, s.Tax)
	e.FieldStart("total")
	money(e, s.Total)
	e.ObjEnd()
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	p.Image = h.imageURL(p.Image)
	p.Encode(e)
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
}

// encodeOrder writes o. The session is only exposed to admins.
func encodeOrder(e *jx.Encoder, o *order.Order, withSession bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	if withSession {
		e.FieldStart("sessionId")
		e.Str(o.SessionID)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		money(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("shipping")
	money(e, o.Shipping)
	e.FieldStart("tax")
	money(e, o.Tax)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("paymentRef")
	e.Str(o.PaymentRef)
	if o.AmountPaid.Valid {
		e.FieldStart("amountPaid")
		money(e, o.AmountPaid.Decimal)
	}
	e.FieldStart("underpaid")
	e.Bool(o.Underpaid())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
