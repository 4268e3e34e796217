package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/swim-engine/booking"
)

func (h *harness) product(t *testing.T, id booking.ProductID, price int64, qty int) {
	t.Helper()
	require.NoError(t, h.store.SaveProduct(context.Background(), booking.Product{
		ID:        id,
		Name:      "Product " + string(id),
		Price:     decimal.NewFromInt(price),
		Category:  booking.CategorySwimEquipment,
		InStock:   qty > 0,
		Quantity:  qty,
		Active:    true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}))
}

func (h *harness) balance(t *testing.T, id booking.StudentID) decimal.Decimal {
	t.Helper()
	st, err := h.store.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return st.Balance
}

func TestChargeBalance_CreditsOnce(t *testing.T) {
	// GIVEN: A student starting a 200000 top-up
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")

	checkout, err := h.engine.ChargeBalance(ctx, "s1", decimal.NewFromInt(200000))
	require.NoError(t, err)
	assert.NotEmpty(t, checkout.RedirectURL)
	assert.Equal(t, booking.PurposeBalance, checkout.Attempt.Purpose)

	req, ok := h.gateway.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8080/api/payments/callback", req.CallbackURL)
	assert.True(t, h.balance(t, "s1").IsZero(), "nothing credited before verification")

	// WHEN: The callback is delivered three times concurrently
	ref := checkout.Attempt.Reference
	var wg sync.WaitGroup
	results := make([]*booking.CallbackResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = h.engine.HandleWalletCallback(ctx, ref, booking.GatewayStatusOK)
		}(i)
	}
	wg.Wait()

	// THEN: The balance was credited exactly once
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, booking.OutcomeSuccess, r.Outcome)
	}
	assert.True(t, h.balance(t, "s1").Equal(decimal.NewFromInt(200000)))

	attempt, err := h.store.GetPaymentAttempt(ctx, ref)
	require.NoError(t, err)
	assert.True(t, attempt.Confirmed)
}

func TestChargeBalance_InvalidAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")

	for _, amount := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-5000),
		decimal.RequireFromString("1000.5"),
		booking.MaxAmount.Add(decimal.NewFromInt(1)),
		decimal.RequireFromString("10000000000000000000"),
	} {
		_, err := h.engine.ChargeBalance(ctx, "s1", amount)
		assert.ErrorIs(t, err, booking.ErrInvalidAmount, amount.String())
	}
	assert.Zero(t, h.gateway.RequestCount())

	_, err := h.engine.ChargeBalance(ctx, "ghost", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, booking.ErrStudentNotFound)
}

func TestHandleWalletCallback_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	checkout, err := h.engine.ChargeBalance(ctx, "s1", decimal.NewFromInt(50000))
	require.NoError(t, err)

	cb, err := h.engine.HandleWalletCallback(ctx, checkout.Attempt.Reference, "NOK")

	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.True(t, h.balance(t, "s1").IsZero())
	assert.Zero(t, h.gateway.VerifyCount())
}

func TestHandleWalletCallback_NotVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	checkout, err := h.engine.ChargeBalance(ctx, "s1", decimal.NewFromInt(50000))
	require.NoError(t, err)
	h.gateway.SetVerifyResult(checkout.Attempt.Reference, booking.NotVerified)

	cb, err := h.engine.HandleWalletCallback(ctx, checkout.Attempt.Reference, booking.GatewayStatusOK)

	assert.ErrorIs(t, err, booking.ErrPaymentVerificationFailed)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.True(t, h.balance(t, "s1").IsZero())
}

func TestHandleWalletCallback_GatewayUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	checkout, err := h.engine.ChargeBalance(ctx, "s1", decimal.NewFromInt(50000))
	require.NoError(t, err)
	h.gateway.FailVerify(errors.New("connection reset"))

	cb, err := h.engine.HandleWalletCallback(ctx, checkout.Attempt.Reference, booking.GatewayStatusOK)

	assert.ErrorIs(t, err, booking.ErrGatewayUnavailable)
	assert.Equal(t, booking.OutcomeError, cb.Outcome)

	attempt, err := h.store.GetPaymentAttempt(ctx, checkout.Attempt.Reference)
	require.NoError(t, err)
	assert.False(t, attempt.Confirmed)
}

func TestHandleWalletCallback_UnknownReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cb, err := h.engine.HandleWalletCallback(ctx, "A-nope", booking.GatewayStatusOK)
	assert.ErrorIs(t, err, booking.ErrPaymentNotFound)
	assert.Equal(t, booking.OutcomeNotFound, cb.Outcome)
}

func TestHandleWalletCallback_DelegatesRegistrationPayments(t *testing.T) {
	// GIVEN: A pending class registration
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 8, 2)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)

	// WHEN: Its callback lands on the wallet endpoint
	cb, err := h.engine.HandleWalletCallback(ctx, res.Registration.PaymentReference, booking.GatewayStatusOK)

	// THEN: It is settled as a registration and the balance is untouched
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	require.NotNil(t, cb.Registration)
	assert.Equal(t, booking.PaymentPaid, cb.Registration.PaymentStatus)
	assert.Equal(t, 3, h.enrolled(t, "paid"))
	assert.True(t, h.balance(t, "s1").IsZero())
}

func TestCheckoutCart_PricesFromCatalog(t *testing.T) {
	// GIVEN: Goggles at 85000 and a wetsuit at 320000
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	h.product(t, "goggles", 85000, 10)
	h.product(t, "wetsuit", 320000, 2)

	// WHEN: Goggles appear on two lines
	checkout, err := h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{
		{ProductID: "goggles", Quantity: 1},
		{ProductID: "wetsuit", Quantity: 1},
		{ProductID: "goggles", Quantity: 1},
	})

	// THEN: 2 x 85000 + 320000
	require.NoError(t, err)
	assert.True(t, checkout.Attempt.Amount.Equal(decimal.NewFromInt(490000)))
	assert.Equal(t, booking.PurposeCart, checkout.Attempt.Purpose)
	assert.Contains(t, checkout.Attempt.Description, "x2")

	// AND: Confirming a cart never touches the balance
	cb, err := h.engine.HandleWalletCallback(ctx, checkout.Attempt.Reference, booking.GatewayStatusOK)
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.True(t, h.balance(t, "s1").IsZero())
}

func TestCheckoutCart_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	h.product(t, "wetsuit", 320000, 1)
	h.product(t, "sold-out", 50000, 0)

	_, err := h.engine.CheckoutCart(ctx, "s1", nil)
	assert.ErrorIs(t, err, booking.ErrInvalidInput)

	_, err = h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{{ProductID: "wetsuit", Quantity: 0}})
	assert.ErrorIs(t, err, booking.ErrInvalidInput)

	_, err = h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{{ProductID: "wetsuit", Quantity: 2}})
	assert.ErrorIs(t, err, booking.ErrOutOfStock)

	_, err = h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{{ProductID: "sold-out", Quantity: 1}})
	assert.ErrorIs(t, err, booking.ErrOutOfStock)

	_, err = h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{{ProductID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, booking.ErrProductNotFound)

	assert.Zero(t, h.gateway.RequestCount())
}

func TestCheckoutCart_TotalAboveMaximum(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.student(t, "s1")
	h.product(t, "boat", 900_000_000_000, 5)

	// WHEN: Price times quantity exceeds the per-payment ceiling
	_, err := h.engine.CheckoutCart(ctx, "s1", []booking.CartItem{{ProductID: "boat", Quantity: 2}})

	// THEN: Rejected before any gateway call
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	assert.Zero(t, h.gateway.RequestCount())
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcilePending(t *testing.T) {
	// GIVEN: Two pending registrations whose callbacks never arrived
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 8, 0)
	for _, id := range []booking.StudentID{"paid-1", "rejected"} {
		h.student(t, id)
	}

	paid, err := h.engine.RegisterForClass(ctx, "paid-1", "paid")
	require.NoError(t, err)
	rejected, err := h.engine.RegisterForClass(ctx, "rejected", "paid")
	require.NoError(t, err)
	h.gateway.SetVerifyResult(rejected.Registration.PaymentReference, booking.NotVerified)

	// AND: A fresh one that is too young to reconcile
	h.clock.Advance(50 * time.Minute)
	h.student(t, "fresh")
	fresh, err := h.engine.RegisterForClass(ctx, "fresh", "paid")
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)

	// WHEN: Reconciliation runs for payments older than 30 minutes
	report, err := h.engine.ReconcilePending(ctx, 30*time.Minute)

	// THEN: The old ones are settled, the fresh one is left alone
	require.NoError(t, err)
	assert.Equal(t, booking.ReconcileReport{Checked: 2, Confirmed: 1, Failed: 1}, report)
	assert.Equal(t, booking.PaymentPaid, h.registration(t, paid.Registration.PaymentReference).PaymentStatus)
	assert.Equal(t, booking.PaymentFailed, h.registration(t, rejected.Registration.PaymentReference).PaymentStatus)
	assert.Equal(t, booking.PaymentPending, h.registration(t, fresh.Registration.PaymentReference).PaymentStatus)
	assert.Equal(t, 1, h.enrolled(t, "paid"))

	// WHEN: The gateway is down on the next run
	h.clock.Advance(time.Hour)
	h.gateway.FailVerify(errors.New("timeout"))
	report, err = h.engine.ReconcilePending(ctx, 30*time.Minute)

	// THEN: The registration stays pending and is counted as errored
	require.NoError(t, err)
	assert.Equal(t, booking.ReconcileReport{Checked: 1, Errored: 1}, report)
	assert.Equal(t, booking.PaymentPending, h.registration(t, fresh.Registration.PaymentReference).PaymentStatus)

	// AND: The late callback for the reconciled registration is a no-op
	h.gateway.FailVerify(nil)
	cb, err := h.engine.HandlePaymentCallback(ctx, paid.Registration.PaymentReference, booking.GatewayStatusOK)
	require.NoError(t, err)
	assert.True(t, cb.Replayed)
	assert.Equal(t, 1, h.enrolled(t, "paid"))
}
