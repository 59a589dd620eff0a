package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/orvelix/internal/domain/checkout"
	"github.com/xenking/orvelix/pkg/httpmiddleware"
)

// checkoutQuote serves GET /api/checkout: the priced cart and the payment
// methods on offer.
func (h *Handler) checkoutQuote(w http.ResponseWriter, r *http.Request) {
	state, summary := h.checkout.Quote(r.Context(), httpmiddleware.SessionFromContext(r.Context()))
	methods := h.checkout.Methods()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cart")
		h.encodeCart(e, state, summary)
		e.FieldStart("currency")
		e.Str(h.checkout.Rules().Currency)
		e.FieldStart("methods")
		e.ArrStart()
		for _, m := range methods {
			e.Str(m.Kind())
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// beginCheckout serves POST /api/checkout with {"method"}.
func (h *Handler) beginCheckout(w http.ResponseWriter, r *http.Request) {
	var method string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "method" {
			return d.Skip()
		}
		v, err := d.Str()
		method = v
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := checkout.ParseMethod(method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := h.checkout.Begin(r.Context(), httpmiddleware.SessionFromContext(r.Context()), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("method")
		e.Str(sess.Method.Kind())
		e.FieldStart("paymentRef")
		e.Str(sess.Intent.ID)
		if sess.Intent.ClientSecret != "" {
			e.FieldStart("clientSecret")
			e.Str(sess.Intent.ClientSecret)
		}
		if sess.Intent.ApproveURL != "" {
			e.FieldStart("approveUrl")
			e.Str(sess.Intent.ApproveURL)
		}
		e.FieldStart("summary")
		encodeSummary(e, sess.Summary)
		e.ObjEnd()
	})
}

// completeCheckout serves POST /api/checkout/complete with
// {"method","paymentRef","error"?}. A non-empty error reports the failure
// the collaborator showed the customer.
func (h *Handler) completeCheckout(w http.ResponseWriter, r *http.Request) {
	var method, ref, reported string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "method":
			method, err = d.Str()
		case "paymentRef":
			ref, err = d.Str()
		case "error":
			if d.Next() == jx.Null {
				return d.Null()
			}
			reported, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := checkout.ParseMethod(method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	done := h.checkout.Callbacks(httpmiddleware.SessionFromContext(ctx), m)
	if reported != "" {
		writeError(w, r, done.OnError(ctx, errors.New(reported)))
		return
	}

	o, err := done.OnSuccess(ctx, checkout.Confirmation{Ref: ref})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, o, false)
		e.ObjEnd()
	})
}
