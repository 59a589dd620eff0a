package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orvelix/internal/domain/auth"
	"github.com/xenking/orvelix/internal/domain/cart"
	"github.com/xenking/orvelix/internal/domain/checkout"
	"github.com/xenking/orvelix/internal/domain/order"
	"github.com/xenking/orvelix/internal/domain/product"
	"github.com/xenking/orvelix/internal/handler"
	"github.com/xenking/orvelix/internal/payment/paypal"
	"github.com/xenking/orvelix/internal/payment/stripe"
	"github.com/xenking/orvelix/pkg/health"
	"github.com/xenking/orvelix/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return serve(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg, ln)
}

func serve(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	ln net.Listener,
) error {
	defer func() { _ = ln.Close() }()

	lg.Info("Initializing",
		zap.Stringer("addr", ln.Addr()),
		zap.String("storage", cfg.Storage.Backend),
	)

	rules, err := cfg.Checkout.Rules()
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, lg.Named("storage"), cfg.Storage, bootstrapKeys(cfg))
	if err != nil {
		return err
	}
	defer st.close()

	// Carts: write-behind persistence over the selected KV.
	cartMeter := mp.Meter("orvelix/cart")
	wb, err := cart.NewWriteBehind(lg.Named("cart"), cartMeter)
	if err != nil {
		return errors.Wrap(err, "create cart writer")
	}
	carts, err := cart.NewManager(st.carts, wb, lg.Named("cart"), cartMeter, cfg.Cart.Resident)
	if err != nil {
		return errors.Wrap(err, "create cart manager")
	}

	// Domain services.
	products := product.NewService(st.products)
	orders := order.NewService(st.orders)

	params := checkout.Params{
		Rules:          rules,
		Carts:          carts,
		Orders:         orders,
		TracerProvider: tp,
		MeterProvider:  mp,
	}
	paymentClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		),
	}
	if key := cfg.Stripe.SecretKey; key != "" {
		params.Card = stripe.New(key, stripe.Options{
			BaseURL:           cfg.Stripe.BaseURL,
			HTTPClient:        paymentClient,
			Logger:            lg,
			MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
		})
	} else {
		lg.Warn("Card payments disabled: no Stripe secret key")
	}
	if pp := cfg.Paypal; pp.ClientID != "" && pp.Secret != "" {
		params.Wallet = paypal.New(pp.ClientID, pp.Secret, paypal.Options{
			BaseURL:    pp.BaseURL,
			HTTPClient: paymentClient,
			ReturnURL:  pp.ReturnURL,
			CancelURL:  pp.CancelURL,
		})
	} else {
		lg.Warn("Wallet payments disabled: no PayPal credentials")
	}
	checkoutSvc, err := checkout.NewService(params)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}
	if err := checkoutSvc.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm checkout")
	}
	authenticator := auth.NewAuthenticator(st.keys, []byte(cfg.APIKeyPepper))

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	if st.pinger != nil {
		healthSvc.AddReadinessCheck(cfg.Storage.Backend, health.PingCheck(st.pinger), health.CheckOptions{
			Timeout: 5 * time.Second,
		})
	}
	healthSvc.AddReadinessCheck("cart-writes", health.QueueDepthCheck(wb.Len, cfg.Cart.MaxPending), health.CheckOptions{})
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000), health.CheckOptions{})
	healthSvc.AddLivenessCheck("gc-pause", health.GCMaxPauseCheck(time.Second), health.CheckOptions{})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints and API routes on one server.
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		products, carts, checkoutSvc, orders, authenticator,
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("orvelix-api", tp, mp),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Session(httpmiddleware.SessionConfig{
				MaxAge: cfg.Cart.SessionMaxAge,
				Secure: cfg.Cart.SecureCookie,
			}),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.Stringer("addr", ln.Addr()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := wb.Close(shutdownCtx); err != nil {
			lg.Error("Flush pending cart saves", zap.Error(err), zap.Int("pending", wb.Len()))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}
