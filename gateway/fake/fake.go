// Package fake provides an in-process booking.PaymentGateway.
//
// Tests script its outcomes and read its call counters. With Instant set it
// doubles as a development gateway: the redirect URL points straight back at
// the callback with Status=OK, so the full flow runs without a real provider.
package fake

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
)

// ReferencePrefix marks every reference this package issues. References are
// random, so a restarted process never reissues one already stored.
const ReferencePrefix = "FAKE-"

// Gateway is safe for concurrent use.
type Gateway struct {
	// Instant makes RedirectURL the callback URL itself.
	Instant bool

	mu            sync.Mutex
	issued        map[string]decimal.Decimal
	requests      []booking.PaymentRequest
	verifyCalls   int
	requestErr    error
	verifyErr     error
	verifyResults map[string]booking.VerifyResult
	verifyHook    func(reference string)
}

func New() *Gateway {
	return &Gateway{
		issued:        make(map[string]decimal.Decimal),
		verifyResults: make(map[string]booking.VerifyResult),
	}
}

var _ booking.PaymentGateway = (*Gateway)(nil)

func (g *Gateway) RequestPayment(_ context.Context, req booking.PaymentRequest) (*booking.PaymentTicket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.requestErr != nil {
		return nil, g.requestErr
	}

	ref := ReferencePrefix + uuid.NewString()
	g.issued[ref] = req.Amount

	redirect := "https://sandbox.fake-gateway.local/pg/StartPay/" + ref
	if g.Instant {
		redirect = callbackURL(req.CallbackURL, ref)
	}
	return &booking.PaymentTicket{Reference: ref, RedirectURL: redirect}, nil
}

// VerifyPayment returns the scripted result for reference, or Verified for
// any reference this gateway issued with a matching amount. In Instant mode a
// fake reference issued by an earlier process is also Verified, so payments
// left pending across a restart still settle.
func (g *Gateway) VerifyPayment(_ context.Context, amount decimal.Decimal, reference string) (booking.VerifyResult, error) {
	g.mu.Lock()
	g.verifyCalls++
	hook := g.verifyHook
	err := g.verifyErr
	res, scripted := g.verifyResults[reference]
	issuedAmount, issued := g.issued[reference]
	g.mu.Unlock()

	if hook != nil {
		hook(reference)
	}
	if err != nil {
		return booking.NotVerified, err
	}
	if scripted {
		return res, nil
	}
	if !issued {
		if g.Instant && strings.HasPrefix(reference, ReferencePrefix) {
			return booking.Verified, nil
		}
		return booking.NotVerified, nil
	}
	if !issuedAmount.Equal(amount) {
		return booking.NotVerified, nil
	}
	return booking.Verified, nil
}

// =============================================================================
// SCRIPTING
// =============================================================================

// FailRequests makes RequestPayment return err until cleared with nil.
func (g *Gateway) FailRequests(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requestErr = err
}

// FailVerify makes VerifyPayment return err until cleared with nil.
func (g *Gateway) FailVerify(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

// SetVerifyResult scripts the verification answer for one reference.
func (g *Gateway) SetVerifyResult(reference string, res booking.VerifyResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyResults[reference] = res
}

// OnVerify registers a hook run inside every VerifyPayment call, before the
// answer is returned. Tests use it to interleave other work.
func (g *Gateway) OnVerify(fn func(reference string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyHook = fn
}

// =============================================================================
// COUNTERS
// =============================================================================

func (g *Gateway) RequestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *Gateway) VerifyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

// LastRequest returns the most recent payment request, if any.
func (g *Gateway) LastRequest() (booking.PaymentRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return booking.PaymentRequest{}, false
	}
	return g.requests[len(g.requests)-1], true
}

func callbackURL(base, ref string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("Authority", ref)
	q.Set("Status", "OK")
	u.RawQuery = q.Encode()
	return u.String()
}
