/*
Package zarinpal implements booking.PaymentGateway against the Zarinpal v4
REST API.

PROTOCOL:
  Request: POST {base}/pg/v4/payment/request.json
           {merchant_id, amount, callback_url, description, metadata}
           success iff data.code == 100; data.authority is the reference.
           Payer is sent to {base}/pg/StartPay/{authority}.

  Verify:  POST {base}/pg/v4/payment/verify.json
           {merchant_id, amount, authority}
           data.code 100 = verified, 101 = already verified.

  On failure the API answers with "data": [] and an "errors" object carrying
  a negative code, so both members are decoded lazily.

ERROR MAPPING:
  RequestPayment: every failure wraps ErrPaymentInitiationFailed.
  VerifyPayment:  a definite gateway answer is a VerifyResult, never an
                  error. Transport failures, 5xx responses and bodies that
                  carry no code wrap ErrGatewayUnavailable.
*/
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
)

const (
	SandboxBaseURL    = "https://sandbox.zarinpal.com"
	ProductionBaseURL = "https://payment.zarinpal.com"

	codeSuccess         = 100
	codeAlreadyVerified = 101

	maxBodyBytes = 1 << 20
)

// Config configures a Client. BaseURL overrides the Sandbox switch.
type Config struct {
	MerchantID string
	Sandbox    bool
	BaseURL    string
	Timeout    time.Duration
}

// Client is a Zarinpal payment gateway client.
type Client struct {
	merchantID string
	baseURL    string
	httpClient *http.Client
}

var _ booking.PaymentGateway = (*Client)(nil)

// NewClient creates a new Zarinpal client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = ProductionBaseURL
		if cfg.Sandbox {
			base = SandboxBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		merchantID: cfg.MerchantID,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type metadata struct {
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

type requestBody struct {
	MerchantID  string    `json:"merchant_id"`
	Amount      int64     `json:"amount"`
	CallbackURL string    `json:"callback_url"`
	Description string    `json:"description"`
	Metadata    *metadata `json:"metadata,omitempty"`
}

type verifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type result struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
	RefID     int64  `json:"ref_id"`
}

// =============================================================================
// REQUEST
// =============================================================================

// RequestPayment starts a payment and returns the authority and StartPay URL.
func (c *Client) RequestPayment(ctx context.Context, req booking.PaymentRequest) (*booking.PaymentTicket, error) {
	fail := func(code int, msg string, err error) error {
		return &booking.GatewayError{
			Kind: booking.ErrPaymentInitiationFailed, Op: "request", Code: code, Message: msg, Err: err,
		}
	}

	if err := booking.ValidateAmount(req.Amount); err != nil || !req.Amount.IsPositive() {
		return nil, fail(0, "amount must be a positive whole number", booking.ErrInvalidAmount)
	}

	body := requestBody{
		MerchantID:  c.merchantID,
		Amount:      req.Amount.IntPart(),
		CallbackURL: req.CallbackURL,
		Description: req.Description,
	}
	if req.Email != "" || req.Mobile != "" {
		body.Metadata = &metadata{Email: req.Email, Mobile: req.Mobile}
	}

	status, env, err := c.post(ctx, "/pg/v4/payment/request.json", body)
	if err != nil {
		return nil, fail(0, "", err)
	}

	data, hasData := decodeResult(env.Data)
	if hasData && data.Code == codeSuccess && data.Authority != "" {
		return &booking.PaymentTicket{
			Reference:   data.Authority,
			RedirectURL: c.baseURL + "/pg/StartPay/" + data.Authority,
		}, nil
	}

	if e, ok := decodeResult(env.Errors); ok {
		return nil, fail(e.Code, e.Message, nil)
	}
	if hasData {
		return nil, fail(data.Code, data.Message, nil)
	}
	return nil, fail(0, fmt.Sprintf("unexpected response (HTTP %d)", status), nil)
}

// =============================================================================
// VERIFY
// =============================================================================

// VerifyPayment asks the gateway whether the payment behind authority
// completed for the given amount.
func (c *Client) VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (booking.VerifyResult, error) {
	unavailable := func(msg string, err error) error {
		return &booking.GatewayError{
			Kind: booking.ErrGatewayUnavailable, Op: "verify", Message: msg, Err: err,
		}
	}

	status, env, err := c.post(ctx, "/pg/v4/payment/verify.json", verifyBody{
		MerchantID: c.merchantID,
		Amount:     amount.IntPart(),
		Authority:  authority,
	})
	if err != nil {
		return booking.NotVerified, unavailable("", err)
	}
	if status >= http.StatusInternalServerError {
		return booking.NotVerified, unavailable(fmt.Sprintf("HTTP %d", status), nil)
	}

	if data, ok := decodeResult(env.Data); ok && data.Code != 0 {
		switch data.Code {
		case codeSuccess:
			return booking.Verified, nil
		case codeAlreadyVerified:
			return booking.AlreadyVerified, nil
		default:
			return booking.NotVerified, nil
		}
	}
	if e, ok := decodeResult(env.Errors); ok && e.Code != 0 {
		return booking.NotVerified, nil
	}
	return booking.NotVerified, unavailable(fmt.Sprintf("response without code (HTTP %d)", status), nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// post sends a JSON body and decodes the envelope. It returns an error only
// when no envelope could be read.
func (c *Client) post(ctx context.Context, path string, payload any) (int, envelope, error) {
	var env envelope

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, env, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, env, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, env, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, env, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return resp.StatusCode, env, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, env, nil
}

// decodeResult decodes a data or errors member. Empty arrays and nulls,
// which the API uses for "absent", report false.
func decodeResult(raw json.RawMessage) (result, bool) {
	var r result
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return r, false
	}
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return r, false
	}
	return r, true
}
