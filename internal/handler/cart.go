package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/pkg/httpmiddleware"
)

// errOutOfStock rejects adding a product that cannot be bought.
var errOutOfStock = &apiError{Code: http.StatusConflict, Message: "product is out of stock"}

func (h *Handler) writeCart(w http.ResponseWriter, status int, s cart.State) {
	summary := h.checkout.Rules().Quote(s.Total)
	writeJSON(w, status, func(e *jx.Encoder) { h.encodeCart(e, s, summary) })
}

func (h *Handler) store(r *http.Request) *cart.Store {
	return h.carts.Get(r.Context(), httpmiddleware.SessionFromContext(r.Context()))
}

// getCart serves GET /api/cart.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, http.StatusOK, h.store(r).Snapshot())
}

// clearCart serves DELETE /api/cart.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s := h.store(r)
	s.Clear()
	h.writeCart(w, http.StatusOK, s.Snapshot())
}

// addCartItem serves POST /api/cart/items with {"productId","quantity"}.
// The quantity is coerced like persisted cart data and defaults to 1.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  = 1
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId", "id":
			if d.Next() != jx.String {
				return badRequest("productId must be a string")
			}
			v, err := d.Str()
			productID = v
			return err
		case "quantity":
			return decodeQuantity(d, &quantity)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if productID == "" {
		writeError(w, r, badRequest("productId is required"))
		return
	}

	p, err := h.products.Get(r.Context(), productID)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "add to cart"))
		return
	}
	if !p.InStock {
		writeError(w, r, errOutOfStock)
		return
	}

	s := h.store(r)
	s.AddItem(cart.SnapshotOf(*p), quantity)
	h.writeCart(w, http.StatusOK, s.Snapshot())
}

// updateCartItem serves PATCH /api/cart/items/{id} with {"quantity"}. A
// quantity of zero or less removes the line.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		quantity int
		seen     bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		return decodeQuantity(d, &quantity)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !seen {
		writeError(w, r, badRequest("quantity is required"))
		return
	}

	s := h.store(r)
	s.UpdateQuantity(r.PathValue("id"), quantity)
	h.writeCart(w, http.StatusOK, s.Snapshot())
}

// removeCartItem serves DELETE /api/cart/items/{id}.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s := h.store(r)
	s.RemoveItem(r.PathValue("id"))
	h.writeCart(w, http.StatusOK, s.Snapshot())
}

func decodeQuantity(d *jx.Decoder, dst *int) error {
	v, err := cart.DecodeNumber(d)
	if err != nil {
		return err
	}
	*dst = cart.ToQuantity(v)
	return nil
}
