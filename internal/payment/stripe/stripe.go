// Package stripe implements card payments on Stripe PaymentIntents.
package stripe

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/orvelix/internal/domain/checkout"
)

// Options configures a Client.
type Options struct {
	// BaseURL overrides the Stripe API endpoint.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// MaxNetworkRetries is passed to the Stripe backend; zero disables
	// retries.
	MaxNetworkRetries int64
}

// Client is a checkout.CardProcessor backed by Stripe.
type Client struct {
	api *client.API
}

var _ checkout.CardProcessor = (*Client)(nil)

// New creates a Client authenticated with secretKey.
func New(secretKey string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	cfg := &stripeapi.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     lg.Named("stripe").Sugar(),
		MaxNetworkRetries: stripeapi.Int64(opts.MaxNetworkRetries),
		EnableTelemetry:   stripeapi.Bool(false),
	}
	if opts.BaseURL != "" {
		cfg.URL = stripeapi.String(opts.BaseURL)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, cfg)

	return &Client{
		api: client.New(secretKey, &stripeapi.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
	}
}

// ownerKey is the PaymentIntent metadata key holding the checkout owner tag.
const ownerKey = "checkout_owner"

// CreatePaymentIntent implements checkout.CardProcessor. amount is in minor
// units of currency.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount int64, currency, owner string) (checkout.Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(amount),
		Currency: stripeapi.String(currency),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(ownerKey, owner)

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return checkout.Intent{}, errors.Wrap(describe(err), "create payment intent")
	}
	return checkout.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ConfirmPayment implements checkout.CardProcessor by reading the intent
// back from Stripe. Only a succeeded intent counts as paid.
func (c *Client) ConfirmPayment(ctx context.Context, intentID string) (checkout.Confirmation, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return checkout.Confirmation{}, errors.Wrapf(describe(err), "get payment intent %s", intentID)
	}
	return checkout.Confirmation{
		Ref:    pi.ID,
		Paid:   pi.Status == stripeapi.PaymentIntentStatusSucceeded,
		Amount: decimal.New(pi.Amount, -2),
		Owner:  pi.Metadata[ownerKey],
	}, nil
}

// describe flattens a Stripe API error into its code and message.
func describe(err error) error {
	var se *stripeapi.Error
	if errors.As(err, &se) {
		return errors.Errorf("stripe %s (%d): %s", se.Code, se.HTTPStatusCode, se.Msg)
	}
	return err
}
