package paypal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	t           *testing.T
	tokenCalls  atomic.Int32
	captureCode int
	captureBody string
	lastBody    string
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/v1/oauth2/token" {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.Equal(f.t, "client", user)
		assert.Equal(f.t, "secret", pass)
		assert.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"scope":"openid","access_token":"A21AA","token_type":"Bearer","expires_in":32400}`)
		return
	}

	assert.Equal(f.t, "Bearer A21AA", r.Header.Get("Authorization"))
	body, _ := io.ReadAll(r.Body)
	f.lastBody = string(body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{
			"id": "5O190127TN364715T",
			"status": "CREATED",
			"links": [
				{"href": "https://api.paypal.test/v2/checkout/orders/5O190127TN364715T", "rel": "self", "method": "GET"},
				{"href": "https://www.paypal.test/checkoutnow?token=5O190127TN364715T", "rel": "approve", "method": "GET"}
			]
		}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders/5O190127TN364715T/capture":
		w.WriteHeader(f.captureCode)
		_, _ = io.WriteString(w, f.captureBody)
	case r.Method == http.MethodGet && r.URL.Path == "/v2/checkout/orders/5O190127TN364715T":
		_, _ = io.WriteString(w, completedOrder)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist."}`)
	}
}

const completedOrder = `{
	"id": "5O190127TN364715T",
	"status": "COMPLETED",
	"purchase_units": [{
		"reference_id": "default",
		"payments": {
			"captures": [
				{"id": "3C679366HH908993F", "status": "COMPLETED", "amount": {"currency_code": "USD", "value": "123.99"}, "custom_id": "owner-1"}
			]
		}
	}]
}`

func newTestClient(t *testing.T, f *fakePayPal) *Client {
	t.Helper()
	f.t = t
	if f.captureCode == 0 {
		f.captureCode = http.StatusCreated
		f.captureBody = completedOrder
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New("client", "secret", Options{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		ReturnURL:  "https://shop.test/checkout/success",
	})
}

func TestCreateOrder(t *testing.T) {
	f := &fakePayPal{}
	c := newTestClient(t, f)

	intent, err := c.CreateOrder(context.Background(), decimal.RequireFromString("123.9900"), "usd", "owner-1")
	require.NoError(t, err)

	assert.Equal(t, "5O190127TN364715T", intent.ID)
	assert.Equal(t, "https://www.paypal.test/checkoutnow?token=5O190127TN364715T", intent.ApproveURL)
	assert.JSONEq(t, `{
		"intent": "CAPTURE",
		"purchase_units": [{"amount": {"currency_code": "USD", "value": "123.99"}, "custom_id": "owner-1"}],
		"application_context": {"return_url": "https://shop.test/checkout/success"}
	}`, f.lastBody)
}

func TestCaptureOrder(t *testing.T) {
	f := &fakePayPal{}
	c := newTestClient(t, f)

	conf, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)

	assert.Equal(t, "5O190127TN364715T", conf.Ref)
	assert.True(t, conf.Paid)
	assert.True(t, decimal.RequireFromString("123.99").Equal(conf.Amount))
	assert.Equal(t, "owner-1", conf.Owner)
}

func TestCaptureOrder_UnitCustomID(t *testing.T) {
	f := &fakePayPal{
		captureCode: http.StatusCreated,
		captureBody: `{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"custom_id":"owner-2","payments":{"captures":[{"status":"COMPLETED","amount":{"value":"5.00"}}]}}]}`,
	}
	c := newTestClient(t, f)

	conf, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", conf.Owner)
}

func TestCaptureOrder_AlreadyCaptured(t *testing.T) {
	f := &fakePayPal{
		captureCode: http.StatusUnprocessableEntity,
		captureBody: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED","description":"Order already captured."}],"message":"The requested action could not be performed."}`,
	}
	c := newTestClient(t, f)

	conf, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.True(t, conf.Paid)
}

func TestCaptureOrder_Declined(t *testing.T) {
	f := &fakePayPal{
		captureCode: http.StatusUnprocessableEntity,
		captureBody: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}],"message":"The instrument presented was declined."}`,
	}
	c := newTestClient(t, f)

	_, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "UNPROCESSABLE_ENTITY", apiErr.Name)
	assert.Contains(t, apiErr.Message, "INSTRUMENT_DECLINED")
}

func TestCaptureOrder_PendingIsNotPaid(t *testing.T) {
	f := &fakePayPal{
		captureCode: http.StatusCreated,
		captureBody: `{"id":"5O190127TN364715T","status":"PAYER_ACTION_REQUIRED"}`,
	}
	c := newTestClient(t, f)

	conf, err := c.CaptureOrder(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.False(t, conf.Paid)
	assert.True(t, conf.Amount.IsZero())
}

func TestAccessTokenIsCached(t *testing.T) {
	f := &fakePayPal{}
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.CreateOrder(ctx, decimal.NewFromInt(10), "usd", "owner-1")
	require.NoError(t, err)
	_, err = c.CaptureOrder(ctx, "5O190127TN364715T")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestUnknownOrder(t *testing.T) {
	c := newTestClient(t, &fakePayPal{})

	_, err := c.CaptureOrder(context.Background(), "missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "RESOURCE_NOT_FOUND", apiErr.Name)
}
