package booking

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the hosted-payment collaborator.
//
// RequestPayment starts a payment and returns the gateway reference plus the
// page to send the payer to. Any rejection or transport failure is an error
// wrapping ErrPaymentInitiationFailed.
//
// VerifyPayment asks whether the payment behind reference completed. A
// definite answer (including "no") is returned as a VerifyResult; only
// transport failures and malformed responses are errors, wrapping
// ErrGatewayUnavailable. The gateway is idempotent, so repeated calls for the
// same reference are safe.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentTicket, error)
	VerifyPayment(ctx context.Context, amount decimal.Decimal, reference string) (VerifyResult, error)
}

type PaymentRequest struct {
	Amount      decimal.Decimal
	CallbackURL string
	Description string
	Email       string
	Mobile      string
}

type PaymentTicket struct {
	Reference   string
	RedirectURL string
}

type VerifyResult int

const (
	NotVerified VerifyResult = iota
	Verified
	AlreadyVerified
)

// Succeeded reports whether the gateway confirmed the payment.
func (v VerifyResult) Succeeded() bool {
	return v == Verified || v == AlreadyVerified
}

func (v VerifyResult) String() string {
	switch v {
	case Verified:
		return "verified"
	case AlreadyVerified:
		return "already_verified"
	default:
		return "not_verified"
	}
}

// GatewayStatus is the status flag the gateway appends to the callback URL.
// Anything other than "OK" means the payer cancelled or the gateway failed
// before verification. An empty status is treated as proceeding.
type GatewayStatus string

const GatewayStatusOK GatewayStatus = "OK"

func (s GatewayStatus) Proceeding() bool {
	return s == "" || s == GatewayStatusOK
}
