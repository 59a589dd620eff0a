package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookie names the cookie holding the anonymous shopper session.
const SessionCookie = "orvelix_session"

// SessionConfig configures the Session middleware.
type SessionConfig struct {
	// MaxAge is the cookie lifetime. Zero means 30 days.
	MaxAge time.Duration
	// Secure marks the cookie as HTTPS only.
	Secure bool
}

type sessionKey struct{}

// SessionFromContext returns the session ID stored by Session, or "".
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// WithSession returns ctx carrying session id.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// Session ensures every request belongs to a shopper session. A missing or
// malformed cookie is replaced by a freshly issued one.
func Session(cfg SessionConfig) Middleware {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(SessionCookie); err == nil {
				if u, err := uuid.Parse(c.Value); err == nil {
					id = u.String()
				}
			}
			if id == "" {
				id = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(maxAge.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithSession(r.Context(), id)
			ctx = zctx.With(ctx, zap.String("session", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
