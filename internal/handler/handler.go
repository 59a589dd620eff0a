// Package handler implements the storefront and back-office HTTP API.
package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/orvelix/internal/domain/auth"
	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/internal/domain/checkout"
	"github.com/xenking/orvelix/internal/domain/order"
	"github.com/xenking/orvelix/internal/domain/product"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product and cart
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the API, delegating to the domain services.
type Handler struct {
	products *product.Service
	carts    *cart.Manager
	checkout *checkout.Service
	orders   *order.Service
	auth     *auth.Authenticator

	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products *product.Service,
	carts *cart.Manager,
	checkoutSvc *checkout.Service,
	orders *order.Service,
	authenticator *auth.Authenticator,
) *Handler {
	return &Handler{
		products:     products,
		carts:        carts,
		checkout:     checkoutSvc,
		orders:       orders,
		auth:         authenticator,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/products/{id}/related", h.relatedProducts)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PATCH /api/cart/items/{id}", h.updateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeCartItem)

	mux.HandleFunc("GET /api/checkout", h.checkoutQuote)
	mux.HandleFunc("POST /api/checkout", h.beginCheckout)
	mux.HandleFunc("POST /api/checkout/complete", h.completeCheckout)

	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.requireScope(auth.ScopeAdmin, fn))
	}
	admin("POST /api/admin/products", h.createProduct)
	admin("PUT /api/admin/products/{id}", h.updateProduct)
	admin("DELETE /api/admin/products/{id}", h.deleteProduct)
	admin("GET /api/admin/orders", h.listOrders)
	admin("GET /api/admin/orders/{id}", h.getOrder)
	admin("PATCH /api/admin/orders/{id}", h.updateOrderStatus)
}

// imageURL resolves a stored image path against the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
