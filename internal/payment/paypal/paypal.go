// Package paypal implements wallet payments on the PayPal Orders v2 REST API.
package paypal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/orvelix/internal/domain/checkout"
)

// Endpoints of the PayPal environments.
const (
	SandboxURL = "https://api-m.sandbox.paypal.com"
	LiveURL    = "https://api-m.paypal.com"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// ReturnURL and CancelURL are where PayPal sends the customer after the
	// approval page.
	ReturnURL string
	CancelURL string
}

// APIError is a non-2xx answer from PayPal.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %s (%d): %s", e.Name, e.StatusCode, e.Message)
}

// Client is a checkout.WalletProvider backed by PayPal.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	returnURL    string
	cancelURL    string

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

var _ checkout.WalletProvider = (*Client)(nil)

// New creates a Client using the app credentials clientID and secret.
func New(clientID, secret string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
	}
	base := opts.BaseURL
	if base == "" {
		base = SandboxURL
	}
	return &Client{
		baseURL:      strings.TrimRight(base, "/"),
		clientID:     clientID,
		clientSecret: secret,
		http:         httpClient,
		returnURL:    opts.ReturnURL,
		cancelURL:    opts.CancelURL,
		now:          time.Now,
	}
}

// CreateOrder implements checkout.WalletProvider. The returned intent
// carries the PayPal order id and the approval link.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, owner string) (checkout.Intent, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("intent")
	e.Str("CAPTURE")
	e.FieldStart("purchase_units")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("amount")
	e.ObjStart()
	e.FieldStart("currency_code")
	e.Str(strings.ToUpper(currency))
	e.FieldStart("value")
	e.Str(amount.StringFixed(2))
	e.ObjEnd()
	e.FieldStart("custom_id")
	e.Str(owner)
	e.ObjEnd()
	e.ArrEnd()
	if c.returnURL != "" || c.cancelURL != "" {
		e.FieldStart("application_context")
		e.ObjStart()
		if c.returnURL != "" {
			e.FieldStart("return_url")
			e.Str(c.returnURL)
		}
		if c.cancelURL != "" {
			e.FieldStart("cancel_url")
			e.Str(c.cancelURL)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", e.Bytes())
	if err != nil {
		return checkout.Intent{}, errors.Wrap(err, "create order")
	}
	o, err := decodeOrder(body)
	if err != nil {
		return checkout.Intent{}, errors.Wrap(err, "decode order")
	}
	return checkout.Intent{ID: o.id, ApproveURL: o.approve}, nil
}

// CaptureOrder implements checkout.WalletProvider. An order that was
// already captured is read back instead.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (checkout.Confirmation, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)

	body, err := c.do(ctx, http.MethodPost, path+"/capture", []byte("{}"))
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Name == "UNPROCESSABLE_ENTITY" && strings.Contains(apiErr.Message, "ORDER_ALREADY_CAPTURED") {
		body, err = c.do(ctx, http.MethodGet, path, nil)
	}
	if err != nil {
		return checkout.Confirmation{}, errors.Wrapf(err, "capture order %s", orderID)
	}

	o, err := decodeOrder(body)
	if err != nil {
		return checkout.Confirmation{}, errors.Wrap(err, "decode order")
	}
	return checkout.Confirmation{
		Ref:    o.id,
		Paid:   o.status == "COMPLETED",
		Amount: o.captured,
		Owner:  o.customID,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// accessToken returns a cached OAuth token, fetching a new one a minute
// before the current one expires.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	data, err := c.send(req)
	if err != nil {
		return "", errors.Wrap(err, "get access token")
	}

	var (
		token     string
		expiresIn int64
	)
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "access_token":
			v, err := d.Str()
			token = v
			return err
		case "expires_in":
			v, err := d.Int64()
			expiresIn = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", errors.Wrap(err, "decode access token")
	}
	if token == "" {
		return "", errors.New("empty access token")
	}

	c.token = token
	c.expires = c.now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	return token, nil
}

type orderDoc struct {
	id       string
	status   string
	approve  string
	captured decimal.Decimal
	// customID is the first custom_id found on a purchase unit or capture.
	customID string
}

func decodeOrder(data []byte) (orderDoc, error) {
	var o orderDoc
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			o.id = v
			return err
		case "status":
			v, err := d.Str()
			o.status = v
			return err
		case "links":
			return d.Arr(func(d *jx.Decoder) error {
				var href, rel string
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "href":
						v, err := d.Str()
						href = v
						return err
					case "rel":
						v, err := d.Str()
						rel = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				if rel == "approve" || rel == "payer-action" {
					o.approve = href
				}
				return nil
			})
		case "purchase_units":
			return d.Arr(func(d *jx.Decoder) error {
				return decodePurchaseUnit(d, &o)
			})
		default:
			return d.Skip()
		}
	})
	return o, err
}

// decodePurchaseUnit adds completed captures of a purchase unit to
// o.captured and records its custom_id.
func decodePurchaseUnit(d *jx.Decoder, o *orderDoc) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "custom_id":
			return o.decodeCustomID(d)
		case "payments":
		default:
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "captures" {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				var (
					status string
					value  decimal.Decimal
				)
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "status":
						v, err := d.Str()
						status = v
						return err
					case "amount":
						return d.Obj(func(d *jx.Decoder, key string) error {
							if key != "value" {
								return d.Skip()
							}
							v, err := d.Str()
							if err != nil {
								return err
							}
							value, err = decimal.NewFromString(v)
							return err
						})
					case "custom_id":
						return o.decodeCustomID(d)
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				if status == "COMPLETED" {
					o.captured = o.captured.Add(value)
				}
				return nil
			})
		})
	})
}

func (o *orderDoc) decodeCustomID(d *jx.Decoder) error {
	v, err := d.Str()
	if err != nil {
		return err
	}
	if o.customID == "" {
		o.customID = v
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status, Name: http.StatusText(status), Message: strings.TrimSpace(string(data))}

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return apiErr
	}
	var issues []string
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name", "error":
			v, err := d.Str()
			if err == nil && v != "" {
				apiErr.Name = v
			}
			return err
		case "message", "error_description":
			v, err := d.Str()
			if err == nil && v != "" {
				apiErr.Message = v
			}
			return err
		case "details":
			return d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "issue" {
						return d.Skip()
					}
					v, err := d.Str()
					if err == nil {
						issues = append(issues, v)
					}
					return err
				})
			})
		default:
			return d.Skip()
		}
	})
	if len(issues) > 0 {
		apiErr.Message += " [" + strings.Join(issues, ", ") + "]"
	}
	return apiErr
}
