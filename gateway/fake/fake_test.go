package fake

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/swim-engine/booking"
)

func request(t *testing.T, g *Gateway, amount int64) *booking.PaymentTicket {
	t.Helper()
	ticket, err := g.RequestPayment(context.Background(), booking.PaymentRequest{
		Amount:      decimal.NewFromInt(amount),
		CallbackURL: "http://localhost:8080/api/payments/callback",
		Description: "Balance top-up",
	})
	require.NoError(t, err)
	return ticket
}

func TestRequestPayment_ReferencesUniqueAcrossInstances(t *testing.T) {
	a := request(t, New(), 1000)
	b := request(t, New(), 1000)

	assert.True(t, strings.HasPrefix(a.Reference, ReferencePrefix))
	assert.NotEqual(t, a.Reference, b.Reference)
}

func TestRequestPayment_InstantRedirectsToCallback(t *testing.T) {
	g := New()
	g.Instant = true

	ticket := request(t, g, 1000)

	assert.Contains(t, ticket.RedirectURL, "http://localhost:8080/api/payments/callback?")
	assert.Contains(t, ticket.RedirectURL, "Authority="+ticket.Reference)
	assert.Contains(t, ticket.RedirectURL, "Status=OK")
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()
	g := New()
	ticket := request(t, g, 1000)

	res, err := g.VerifyPayment(ctx, decimal.NewFromInt(1000), ticket.Reference)
	require.NoError(t, err)
	assert.Equal(t, booking.Verified, res)

	res, err = g.VerifyPayment(ctx, decimal.NewFromInt(999), ticket.Reference)
	require.NoError(t, err)
	assert.Equal(t, booking.NotVerified, res)
}

func TestVerifyPayment_ReferenceFromEarlierProcess(t *testing.T) {
	ctx := context.Background()
	earlier := request(t, New(), 1000)

	// WHEN: Another instance is asked about it
	strict := New()
	res, err := strict.VerifyPayment(ctx, decimal.NewFromInt(1000), earlier.Reference)
	require.NoError(t, err)
	assert.Equal(t, booking.NotVerified, res)

	// THEN: Only Instant mode accepts it, and only with its own prefix
	instant := New()
	instant.Instant = true
	res, err = instant.VerifyPayment(ctx, decimal.NewFromInt(1000), earlier.Reference)
	require.NoError(t, err)
	assert.Equal(t, booking.Verified, res)

	res, err = instant.VerifyPayment(ctx, decimal.NewFromInt(1000), "A0000000000000000000000000000wNYzz")
	require.NoError(t, err)
	assert.Equal(t, booking.NotVerified, res)
}
