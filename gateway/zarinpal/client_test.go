package zarinpal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/swim-engine/booking"
)

const merchant = "12345678-1234-1234-1234-123456789012"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{MerchantID: merchant, BaseURL: srv.URL, Timeout: time.Second})
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestRequestPayment_Success(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v4/payment/request.json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(w, http.StatusOK, `{"data":{"code":100,"message":"Success","authority":"A0000000000000000000000000000wNYzz","fee_type":"Merchant","fee":100},"errors":[]}`)
	})

	ticket, err := c.RequestPayment(context.Background(), booking.PaymentRequest{
		Amount:      decimal.NewFromInt(450000),
		CallbackURL: "http://localhost:8080/api/registrations/payment-callback",
		Description: "Registration for Butterfly",
		Email:       "s1@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "A0000000000000000000000000000wNYzz", ticket.Reference)
	assert.Equal(t, c.baseURL+"/pg/StartPay/A0000000000000000000000000000wNYzz", ticket.RedirectURL)

	assert.Equal(t, merchant, got["merchant_id"])
	assert.Equal(t, float64(450000), got["amount"])
	assert.Equal(t, "http://localhost:8080/api/registrations/payment-callback", got["callback_url"])
	assert.Equal(t, map[string]any{"email": "s1@example.com"}, got["metadata"])
}

func TestRequestPayment_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnprocessableEntity, `{"data":[],"errors":{"code":-9,"message":"The input params invalid, validation error.","validations":[]}}`)
	})

	_, err := c.RequestPayment(context.Background(), booking.PaymentRequest{Amount: decimal.NewFromInt(1000)})

	require.ErrorIs(t, err, booking.ErrPaymentInitiationFailed)
	var gwErr *booking.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -9, gwErr.Code)
	assert.Contains(t, gwErr.Message, "validation")
}

func TestRequestPayment_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient(Config{MerchantID: merchant, BaseURL: srv.URL})
	srv.Close()

	_, err := c.RequestPayment(context.Background(), booking.PaymentRequest{Amount: decimal.NewFromInt(1000)})
	assert.ErrorIs(t, err, booking.ErrPaymentInitiationFailed)
}

func TestRequestPayment_InvalidAmount(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.RequestPayment(context.Background(), booking.PaymentRequest{Amount: decimal.Zero})
	assert.ErrorIs(t, err, booking.ErrPaymentInitiationFailed)
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	assert.False(t, called, "gateway must not be called")
}

func TestVerifyPayment_Codes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want booking.VerifyResult
	}{
		{"verified", `{"data":{"code":100,"message":"Paid","ref_id":201,"card_pan":"502229******5995"},"errors":[]}`, booking.Verified},
		{"already verified", `{"data":{"code":101,"message":"Verified","ref_id":201},"errors":[]}`, booking.AlreadyVerified},
		{"rejected", `{"data":[],"errors":{"code":-51,"message":"Session is not valid, session is not active paid try.","validations":[]}}`, booking.NotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verifyBody
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/pg/v4/payment/verify.json", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				reply(w, http.StatusOK, tt.body)
			})

			res, err := c.VerifyPayment(context.Background(), decimal.NewFromInt(450000), "A1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			assert.Equal(t, verifyBody{MerchantID: merchant, Amount: 450000, Authority: "A1"}, got)
		})
	}
}

func TestVerifyPayment_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{"data":[],"errors":{"code":-1}}`},
		{"html body", http.StatusOK, `<html>maintenance</html>`},
		{"no code", http.StatusOK, `{"data":[],"errors":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				reply(w, tt.status, tt.body)
			})

			_, err := c.VerifyPayment(context.Background(), decimal.NewFromInt(1000), "A1")

			assert.ErrorIs(t, err, booking.ErrGatewayUnavailable)
			assert.True(t, booking.IsRetryable(err))
		})
	}
}

func TestVerifyPayment_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{MerchantID: merchant, BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	_, err := c.VerifyPayment(context.Background(), decimal.NewFromInt(1000), "A1")
	assert.ErrorIs(t, err, booking.ErrGatewayUnavailable)
}

func TestNewClient_BaseURL(t *testing.T) {
	assert.Equal(t, SandboxBaseURL, NewClient(Config{Sandbox: true}).baseURL)
	assert.Equal(t, ProductionBaseURL, NewClient(Config{}).baseURL)
	assert.Equal(t, "http://gw.local", NewClient(Config{BaseURL: "http://gw.local/"}).baseURL)
}
