package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func memoryConfig() *Config {
	return &Config{
		AdminKey:     "admin-secret",
		APIKeyPepper: "pepper",
		Storage:      StorageConfig{Backend: BackendMemory},
		Cart: CartConfig{
			Resident:      100,
			MaxPending:    100,
			SessionMaxAge: time.Hour,
		},
		Checkout: CheckoutConfig{
			FreeShippingOver: "100",
			ShippingFee:      "15.99",
			TaxRate:          "0.08",
			Currency:         "usd",
			MinCardAmount:    50,
		},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}, AllowCredentials: true},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
}

func TestServe(t *testing.T) {
	lg := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), lg))
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, lg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), memoryConfig(), ln)
	}()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	do := func(method, path, body string, header ...string) *http.Response {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("Livez", func(t *testing.T) {
		resp := do(http.MethodGet, "/livez", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Catalog", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/products?featured=true", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))

		var products []struct {
			ID       string `json:"id"`
			Featured bool   `json:"featured"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
		require.NotEmpty(t, products)
		for _, p := range products {
			assert.True(t, p.Featured, p.ID)
		}
	})

	t.Run("Cart", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/cart/items", `{"productId":"lifestyle-1","quantity":2}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(http.MethodGet, "/api/cart", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var cart struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cart))
		assert.Equal(t, 2, cart.Count)
	})

	t.Run("CheckoutWithoutProviders", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/checkout", `{"method":"card"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("AdminBootstrapKey", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/admin/orders", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = do(http.MethodGet, "/api/admin/orders", "", "api_key", "admin-secret")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	lg := zaptest.NewLogger(t)
	err = serve(context.Background(), lg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), memoryConfig(), ln)
	require.Error(t, err)
}
