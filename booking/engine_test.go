/*
engine_test.go - Tests for the Registration Engine

Tests for:
- Free and paid registration flows
- Capacity under concurrent registrations and confirmations
- Idempotent callback delivery
- Gateway failures at initiation and verification
- Seat lost between payment and confirmation
*/
package booking_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/swim-engine/booking"
	"github.com/warp/swim-engine/gateway/fake"
	"github.com/warp/swim-engine/store/sqlite"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   *sqlite.Store
	gateway *fake.Gateway
	engine  *booking.Engine
	clock   *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, ":memory:")
}

// newFileHarness backs the engine with a database file. Unlike ":memory:" it
// opens several connections, so concurrent writers contend on the file lock.
func newFileHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, filepath.Join(t.TempDir(), "swim.db"))
}

func newHarnessAt(t *testing.T, path string) *harness {
	t.Helper()
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := fake.New()
	clk := &clock{now: t0}
	engine := booking.NewEngine(store, gw, booking.Options{
		RegistrationCallbackURL: "http://localhost:8080/api/registrations/payment-callback",
		WalletCallbackURL:       "http://localhost:8080/api/payments/callback",
		Logger:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:                     clk.Now,
	})
	return &harness{store: store, gateway: gw, engine: engine, clock: clk}
}

func (h *harness) class(t *testing.T, id booking.ClassID, price int64, max, current int) {
	t.Helper()
	require.NoError(t, h.store.CreateClass(context.Background(), booking.ClassSession{
		ID:              id,
		Title:           "Butterfly technique",
		Type:            booking.ClassCompetitionPrep,
		DurationMinutes: 90,
		StartsAt:        t0.Add(72 * time.Hour),
		SkillLevel:      booking.SkillAdvanced,
		MaxStudents:     max,
		CurrentStudents: current,
		Price:           decimal.NewFromInt(price),
		Instructor:      booking.InstructorBoth,
		Location:        "Main pool",
		Active:          true,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}))
}

func (h *harness) student(t *testing.T, id booking.StudentID) {
	t.Helper()
	require.NoError(t, h.store.CreateStudent(context.Background(), booking.Student{
		ID:           id,
		Name:         "Student " + string(id),
		Email:        string(id) + "@example.com",
		Phone:        "09120000000",
		SwimmingType: booking.SwimmingNormal,
		SkillLevel:   booking.SkillBeginner,
		Active:       true,
		CreatedAt:    t0,
	}))
}

func (h *harness) enrolled(t *testing.T, id booking.ClassID) int {
	t.Helper()
	class, err := h.store.GetClass(context.Background(), id)
	require.NoError(t, err)
	return class.CurrentStudents
}

func (h *harness) registration(t *testing.T, reference string) *booking.Registration {
	t.Helper()
	reg, err := h.store.GetRegistrationByReference(context.Background(), reference)
	require.NoError(t, err)
	return reg
}

// =============================================================================
// REGISTRATION FLOWS
// =============================================================================

func TestRegisterForClass_FreeClassFillsUp(t *testing.T) {
	// GIVEN: A free class with a single seat
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "free", 0, 1, 0)
	h.student(t, "s1")
	h.student(t, "s2")

	// WHEN: Student 1 registers
	res, err := h.engine.RegisterForClass(ctx, "s1", "free")

	// THEN: Committed immediately as paid/registered and the seat is taken
	require.NoError(t, err)
	assert.False(t, res.RequiresPayment())
	assert.Equal(t, booking.PaymentPaid, res.Registration.PaymentStatus)
	assert.Equal(t, booking.RegistrationRegistered, res.Registration.Status)
	assert.True(t, res.Registration.PaymentAmount.IsZero())
	assert.Equal(t, 1, h.enrolled(t, "free"))

	// WHEN: Student 2 registers
	_, err = h.engine.RegisterForClass(ctx, "s2", "free")

	// THEN: Capacity exceeded, with the class numbers attached
	require.ErrorIs(t, err, booking.ErrCapacityExceeded)
	var capErr *booking.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 1, capErr.MaxStudents)
	assert.Equal(t, 1, capErr.CurrentStudents)
	assert.Equal(t, 1, h.enrolled(t, "free"))

	// AND: The gateway was never involved
	assert.Zero(t, h.gateway.RequestCount())
	assert.Zero(t, h.gateway.VerifyCount())
}

func TestRegisterForClass_PaidClassIsPendingUntilCallback(t *testing.T) {
	// GIVEN: A paid class with 2 of 8 seats taken
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "butterfly", 450000, 8, 2)
	h.student(t, "s1")

	// WHEN: Student registers
	res, err := h.engine.RegisterForClass(ctx, "s1", "butterfly")

	// THEN: A redirect is returned and the registration is pending
	require.NoError(t, err)
	assert.True(t, res.RequiresPayment())
	assert.Contains(t, res.RedirectURL, res.Registration.PaymentReference)
	assert.Equal(t, booking.PaymentPending, res.Registration.PaymentStatus)
	assert.True(t, res.Registration.PaymentAmount.Equal(decimal.NewFromInt(450000)))
	assert.Equal(t, 2, h.enrolled(t, "butterfly"), "no seat is taken before payment")

	req, ok := h.gateway.LastRequest()
	require.True(t, ok)
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(450000)))
	assert.Equal(t, "http://localhost:8080/api/registrations/payment-callback", req.CallbackURL)
	assert.Contains(t, req.Description, "Butterfly technique")

	attempt, err := h.store.GetPaymentAttempt(ctx, res.Registration.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, booking.PurposeRegistration, attempt.Purpose)
	assert.False(t, attempt.Confirmed)
}

func TestHandlePaymentCallback_CancelledFailsRegistration(t *testing.T) {
	// GIVEN: A pending registration for the paid class
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "butterfly", 450000, 8, 2)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "butterfly")
	require.NoError(t, err)
	ref := res.Registration.PaymentReference

	// WHEN: The payer cancels at the gateway
	cb, err := h.engine.HandlePaymentCallback(ctx, ref, "NOK")

	// THEN: Failed, capacity untouched, gateway not asked to verify
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.Equal(t, booking.PaymentFailed, h.registration(t, ref).PaymentStatus)
	assert.Equal(t, 2, h.enrolled(t, "butterfly"))
	assert.Zero(t, h.gateway.VerifyCount())

	// AND: A repeated cancel is a no-op with the same outcome
	cb, err = h.engine.HandlePaymentCallback(ctx, ref, "NOK")
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.True(t, cb.Replayed)
}

func TestHandlePaymentCallback_VerifiedTakesSeatOnce(t *testing.T) {
	// GIVEN: A pending registration for the paid class
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "butterfly", 450000, 8, 2)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "butterfly")
	require.NoError(t, err)
	ref := res.Registration.PaymentReference

	// WHEN: The verified callback arrives
	cb, err := h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	// THEN: Paid and the seat is taken
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.False(t, cb.Replayed)
	assert.Equal(t, booking.PaymentPaid, h.registration(t, ref).PaymentStatus)
	assert.Equal(t, 3, h.enrolled(t, "butterfly"))

	attempt, err := h.store.GetPaymentAttempt(ctx, ref)
	require.NoError(t, err)
	assert.True(t, attempt.Confirmed)

	// WHEN: The same callback is delivered again
	cb, err = h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	// THEN: Nothing changes and the gateway is not called again
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.True(t, cb.Replayed)
	assert.Equal(t, 3, h.enrolled(t, "butterfly"))
	assert.Equal(t, 1, h.gateway.VerifyCount())
}

func TestHandlePaymentCallback_UnknownReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "butterfly", 450000, 8, 2)

	cb, err := h.engine.HandlePaymentCallback(ctx, "A-unknown", booking.GatewayStatusOK)
	assert.ErrorIs(t, err, booking.ErrRegistrationNotFound)
	assert.Equal(t, booking.OutcomeNotFound, cb.Outcome)
	assert.Zero(t, h.gateway.VerifyCount())
	assert.Equal(t, 2, h.enrolled(t, "butterfly"))

	cb, err = h.engine.HandlePaymentCallback(ctx, "", booking.GatewayStatusOK)
	assert.ErrorIs(t, err, booking.ErrRegistrationNotFound)
	assert.Equal(t, booking.OutcomeNotFound, cb.Outcome)

	// A cancelled callback for an unknown reference is reported as failed
	cb, err = h.engine.HandlePaymentCallback(ctx, "A-unknown", "NOK")
	assert.NoError(t, err)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
}

// =============================================================================
// REGISTRATION PRECONDITIONS
// =============================================================================

func TestRegisterForClass_NotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "c1", 0, 5, 0)
	h.student(t, "s1")

	_, err := h.engine.RegisterForClass(ctx, "s1", "missing")
	assert.ErrorIs(t, err, booking.ErrClassNotFound)

	_, err = h.engine.RegisterForClass(ctx, "ghost", "c1")
	assert.ErrorIs(t, err, booking.ErrStudentNotFound)

	_, err = h.engine.RegisterForClass(ctx, "", "c1")
	assert.ErrorIs(t, err, booking.ErrStudentNotFound)

	class, err := h.store.GetClass(ctx, "c1")
	require.NoError(t, err)
	class.Active = false
	require.NoError(t, h.store.UpdateClass(ctx, *class))

	_, err = h.engine.RegisterForClass(ctx, "s1", "c1")
	assert.ErrorIs(t, err, booking.ErrClassNotFound)
}

func TestRegisterForClass_Duplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 0)
	h.student(t, "s1")

	_, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)

	_, err = h.engine.RegisterForClass(ctx, "s1", "paid")
	assert.ErrorIs(t, err, booking.ErrDuplicateRegistration)
	assert.Equal(t, 1, h.gateway.RequestCount(), "no second payment is started")
}

func TestRegisterForClass_DuplicateAfterFailedPayment(t *testing.T) {
	// GIVEN: A registration whose payment failed
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 0)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	_, err = h.engine.HandlePaymentCallback(ctx, res.Registration.PaymentReference, "NOK")
	require.NoError(t, err)

	// WHEN: The student tries again
	_, err = h.engine.RegisterForClass(ctx, "s1", "paid")

	// THEN: The pair is still taken
	assert.ErrorIs(t, err, booking.ErrDuplicateRegistration)
}

func TestRegisterForClass_InitiationFailurePersistsNothing(t *testing.T) {
	// GIVEN: A gateway that rejects payment requests
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 0)
	h.student(t, "s1")
	h.gateway.FailRequests(errors.New("merchant disabled"))

	// WHEN: Student registers
	_, err := h.engine.RegisterForClass(ctx, "s1", "paid")

	// THEN: PaymentInitiationFailed and no registration exists
	assert.ErrorIs(t, err, booking.ErrPaymentInitiationFailed)
	_, err = h.store.FindRegistration(ctx, "s1", "paid")
	assert.ErrorIs(t, err, booking.ErrRegistrationNotFound)

	// AND: Once the gateway recovers the student can register
	h.gateway.FailRequests(nil)
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	assert.True(t, res.RequiresPayment())
}

// =============================================================================
// VERIFICATION OUTCOMES
// =============================================================================

func TestHandlePaymentCallback_VerificationRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 1)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	ref := res.Registration.PaymentReference
	h.gateway.SetVerifyResult(ref, booking.NotVerified)

	cb, err := h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	assert.ErrorIs(t, err, booking.ErrPaymentVerificationFailed)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.Equal(t, booking.PaymentFailed, h.registration(t, ref).PaymentStatus)
	assert.Equal(t, 1, h.enrolled(t, "paid"))
}

func TestHandlePaymentCallback_AlreadyVerifiedCountsAsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 0)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	ref := res.Registration.PaymentReference
	h.gateway.SetVerifyResult(ref, booking.AlreadyVerified)

	cb, err := h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, 1, h.enrolled(t, "paid"))
}

func TestHandlePaymentCallback_GatewayUnavailableLeavesPending(t *testing.T) {
	// GIVEN: A pending registration and an unreachable gateway
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 5, 0)
	h.student(t, "s1")
	res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	ref := res.Registration.PaymentReference
	h.gateway.FailVerify(errors.New("dial tcp: i/o timeout"))

	// WHEN: The callback arrives
	cb, err := h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	// THEN: Retryable error, registration still pending, no seat taken
	require.ErrorIs(t, err, booking.ErrGatewayUnavailable)
	assert.True(t, booking.IsRetryable(err))
	assert.Equal(t, booking.OutcomeError, cb.Outcome)
	assert.Equal(t, booking.PaymentPending, h.registration(t, ref).PaymentStatus)
	assert.Equal(t, 0, h.enrolled(t, "paid"))

	// WHEN: The gateway recovers and the callback is retried
	h.gateway.FailVerify(nil)
	cb, err = h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	// THEN: It converges to paid
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, 1, h.enrolled(t, "paid"))
}

func TestHandlePaymentCallback_RaceLostAfterPayment(t *testing.T) {
	// GIVEN: Two students pending on the last seat
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "paid", 450000, 1, 0)
	h.student(t, "s1")
	h.student(t, "s2")
	first, err := h.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	second, err := h.engine.RegisterForClass(ctx, "s2", "paid")
	require.NoError(t, err)

	// WHEN: Both pay; the first callback takes the seat
	cb, err := h.engine.HandlePaymentCallback(ctx, first.Registration.PaymentReference, booking.GatewayStatusOK)
	require.NoError(t, err)
	require.Equal(t, booking.OutcomeSuccess, cb.Outcome)

	ref := second.Registration.PaymentReference
	cb, err = h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)

	// THEN: The second is failed with a refund note and capacity holds
	assert.ErrorIs(t, err, booking.ErrRaceLost)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	reg := h.registration(t, ref)
	assert.Equal(t, booking.PaymentFailed, reg.PaymentStatus)
	assert.Contains(t, reg.Notes, "refund")
	assert.Equal(t, 1, h.enrolled(t, "paid"))

	// AND: The captured payment is recorded as confirmed
	attempt, err := h.store.GetPaymentAttempt(ctx, ref)
	require.NoError(t, err)
	assert.True(t, attempt.Confirmed)

	// AND: Replaying the losing callback reports failed without side effects
	cb, err = h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeFailed, cb.Outcome)
	assert.True(t, cb.Replayed)
}

func TestInstantGateway_PendingPaymentSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "swim.db")

	// GIVEN: A pending paid registration made through the development gateway
	before := newHarnessAt(t, path)
	before.gateway.Instant = true
	before.class(t, "paid", 450000, 5, 0)
	before.student(t, "s1")
	before.student(t, "s2")
	first, err := before.engine.RegisterForClass(ctx, "s1", "paid")
	require.NoError(t, err)
	require.NoError(t, before.store.Close())

	// WHEN: The process restarts with a fresh gateway on the same database
	after := newHarnessAt(t, path)
	after.gateway.Instant = true
	second, err := after.engine.RegisterForClass(ctx, "s2", "paid")

	// THEN: New references never collide with stored ones
	require.NoError(t, err)
	assert.NotEqual(t, first.Registration.PaymentReference, second.Registration.PaymentReference)

	// AND: The payment started before the restart still settles
	cb, err := after.engine.HandlePaymentCallback(ctx, first.Registration.PaymentReference, booking.GatewayStatusOK)
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, booking.PaymentPaid, after.registration(t, first.Registration.PaymentReference).PaymentStatus)
	assert.Equal(t, 1, after.enrolled(t, "paid"))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// forEachStore runs fn against the single-connection in-memory store and a
// file-backed store with a connection pool.
func forEachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	t.Run("memory", func(t *testing.T) { fn(t, newHarness(t)) })
	t.Run("file", func(t *testing.T) { fn(t, newFileHarness(t)) })
}

func TestConcurrentFreeRegistrations_NeverExceedCapacity(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		// GIVEN: 3 seats and 12 students racing for them
		const seats, students = 3, 12
		ctx := context.Background()
		h.class(t, "free", 0, seats, 0)
		for i := 0; i < students; i++ {
			h.student(t, booking.StudentID(fmt.Sprintf("s%02d", i)))
		}

		// WHEN: All register at once
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			rejected  int
			other     []error
		)
		for i := 0; i < students; i++ {
			wg.Add(1)
			go func(id booking.StudentID) {
				defer wg.Done()
				_, err := h.engine.RegisterForClass(ctx, id, "free")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, booking.ErrCapacityExceeded), errors.Is(err, booking.ErrRaceLost):
					rejected++
				default:
					other = append(other, err)
				}
			}(booking.StudentID(fmt.Sprintf("s%02d", i)))
		}
		wg.Wait()

		// THEN: Exactly 3 succeed and the rest are rejected
		assert.Empty(t, other)
		assert.Equal(t, seats, succeeded)
		assert.Equal(t, students-seats, rejected)
		assert.Equal(t, seats, h.enrolled(t, "free"))
	})
}

func TestConcurrentPaidConfirmations_NeverExceedCapacity(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		// GIVEN: 2 seats and 6 pending registrations
		const seats, students = 2, 6
		ctx := context.Background()
		h.class(t, "paid", 450000, seats, 0)

		refs := make([]string, 0, students)
		for i := 0; i < students; i++ {
			id := booking.StudentID(fmt.Sprintf("s%02d", i))
			h.student(t, id)
			res, err := h.engine.RegisterForClass(ctx, id, "paid")
			require.NoError(t, err)
			refs = append(refs, res.Registration.PaymentReference)
		}

		// WHEN: Every payment is confirmed concurrently
		outcomes := make([]booking.Outcome, students)
		var wg sync.WaitGroup
		for i, ref := range refs {
			wg.Add(1)
			go func(i int, ref string) {
				defer wg.Done()
				cb, err := h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)
				if err == nil {
					outcomes[i] = cb.Outcome
				}
			}(i, ref)
		}
		wg.Wait()

		// THEN: Exactly as many succeed as there are seats
		var paid, failed int
		for _, o := range outcomes {
			switch o {
			case booking.OutcomeSuccess:
				paid++
			case booking.OutcomeFailed:
				failed++
			}
		}
		assert.Equal(t, seats, paid)
		assert.Equal(t, students-seats, failed)
		assert.Equal(t, seats, h.enrolled(t, "paid"))
	})
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		// GIVEN: One student submitting the same free registration twice at once
		ctx := context.Background()
		h.class(t, "free", 0, 10, 0)
		h.student(t, "s1")

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = h.engine.RegisterForClass(ctx, "s1", "free")
			}(i)
		}
		wg.Wait()

		// THEN: One succeeds, the other is a duplicate, one seat taken
		var ok, dup int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, booking.ErrDuplicateRegistration):
				dup++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, dup)
		assert.Equal(t, 1, h.enrolled(t, "free"))
	})
}

func TestConcurrentDuplicateCallbacks_IncrementOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		// GIVEN: A pending registration
		ctx := context.Background()
		h.class(t, "paid", 450000, 8, 2)
		h.student(t, "s1")
		res, err := h.engine.RegisterForClass(ctx, "s1", "paid")
		require.NoError(t, err)
		ref := res.Registration.PaymentReference

		// WHEN: The gateway delivers the callback several times at once
		const deliveries = 5
		results := make([]*booking.CallbackResult, deliveries)
		var wg sync.WaitGroup
		for i := 0; i < deliveries; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _ = h.engine.HandlePaymentCallback(ctx, ref, booking.GatewayStatusOK)
			}(i)
		}
		wg.Wait()

		// THEN: Every delivery reports success, exactly one applied it
		applied := 0
		for _, r := range results {
			require.NotNil(t, r)
			assert.Equal(t, booking.OutcomeSuccess, r.Outcome)
			if !r.Replayed {
				applied++
			}
		}
		assert.Equal(t, 1, applied)
		assert.Equal(t, 3, h.enrolled(t, "paid"))
	})
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListRegistrations_NewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.class(t, "c1", 0, 5, 0)
	h.class(t, "c2", 450000, 5, 0)
	h.student(t, "s1")

	_, err := h.engine.RegisterForClass(ctx, "s1", "c1")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.engine.RegisterForClass(ctx, "s1", "c2")
	require.NoError(t, err)

	list, err := h.engine.ListRegistrations(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, booking.ClassID("c2"), list[0].ClassID)
	assert.Equal(t, booking.PaymentPending, list[0].PaymentStatus)
	assert.Equal(t, "Butterfly technique", list[0].ClassTitle)
	assert.Equal(t, booking.ClassID("c1"), list[1].ClassID)

	_, err = h.engine.ListRegistrations(ctx, "")
	assert.ErrorIs(t, err, booking.ErrStudentNotFound)
}
