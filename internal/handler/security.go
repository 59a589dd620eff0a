package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orvelix/internal/domain/auth"
)

// APIKeyHeader carries the back-office API key.
const APIKeyHeader = "api_key"

var errForbidden = &apiError{Code: http.StatusForbidden, Message: "forbidden"}

// requireScope authenticates the api_key header and admits only keys
// granted scope.
func (h *Handler) requireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		if !info.HasScope(scope) {
			writeError(w, r, errForbidden)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
