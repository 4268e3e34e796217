/*
engine.go - Registration Engine

PURPOSE:
  Orchestrates class registration: availability checks, the free-class
  commit, payment initiation for paid classes, and reconciliation of the
  gateway callback into exactly one outcome per registration.

CRITICAL INVARIANTS:
  1. CAPACITY: currentStudents <= maxStudents. The only increment is
     Ledger.ReserveSeat, a single conditional UPDATE, used by both the free
     commit and the paid confirmation.
  2. ONE SETTLEMENT: a registration leaves 'pending' exactly once. The
     pending→paid transition is the guard for the seat increment, so a
     callback delivered twice (or concurrently with itself) increments once.
  3. ONE REGISTRATION PER PAIR: enforced by the store's unique index; the
     pre-check only gives a friendlier early answer.

FLOWS:
  Free class:  check → tx{insert(paid) + reserve seat} → 201
  Paid class:  check → gateway.RequestPayment → tx{insert(pending) + attempt} → redirect
  Callback:    lookup by reference → gateway.VerifyPayment →
               tx{pending→paid + reserve seat + confirm attempt}

RACE LOST:
  If the seat increment matches no row at confirmation time, the confirming
  transaction rolls back and a second one marks the registration failed with
  a refund note. The payment attempt is still confirmed because the gateway
  captured the money.

SEE ALSO:
  - store.go: Atomic primitives
  - payments.go: Balance top-ups and cart checkout
  - reconcile.go: Re-verification of stale pending registrations
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errAlreadySettled aborts a transaction whose guard matched no row because a
// concurrent delivery already resolved the payment.
var errAlreadySettled = errors.New("already settled")

// Options configures an Engine. Zero values get defaults.
type Options struct {
	// RegistrationCallbackURL is where the gateway sends the payer back
	// after paying for a class.
	RegistrationCallbackURL string
	// WalletCallbackURL is the callback for balance top-ups and carts.
	WalletCallbackURL string

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine is the Registration Engine.
type Engine struct {
	store   Store
	gateway PaymentGateway

	registrationCallbackURL string
	walletCallbackURL       string

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine over the given store and gateway.
func NewEngine(store Store, gateway PaymentGateway, opts Options) *Engine {
	e := &Engine{
		store:                   store,
		gateway:                 gateway,
		registrationCallbackURL: opts.RegistrationCallbackURL,
		walletCallbackURL:       opts.WalletCallbackURL,
		log:                     opts.Logger,
		now:                     opts.Now,
		newID:                   opts.NewID,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// =============================================================================
// RESULTS
// =============================================================================

// RegistrationResult is returned by RegisterForClass. RedirectURL is set
// only for paid classes.
type RegistrationResult struct {
	Registration *Registration
	RedirectURL  string
}

// RequiresPayment reports whether the caller must be sent to the gateway.
func (r *RegistrationResult) RequiresPayment() bool { return r.RedirectURL != "" }

// Outcome is the flag a callback reports back to the frontend.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeNotFound Outcome = "notfound"
	OutcomeError    Outcome = "error"
)

// CallbackResult is the resolution of one callback delivery.
type CallbackResult struct {
	Outcome      Outcome
	Registration *Registration
	Attempt      *PaymentAttempt
	// Replayed is true when the delivery found the payment already resolved
	// and changed nothing.
	Replayed bool
}

// =============================================================================
// REGISTER FOR CLASS
// =============================================================================

// RegisterForClass registers a student for a class.
//
// Free classes are committed immediately with payment status paid. Paid
// classes create a pending registration and return the gateway redirect URL;
// the seat is taken only when the payment callback is verified.
func (e *Engine) RegisterForClass(ctx context.Context, studentID StudentID, classID ClassID) (*RegistrationResult, error) {
	if studentID == "" {
		return nil, ErrStudentNotFound
	}
	if classID == "" {
		return nil, ErrClassNotFound
	}

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	class, err := e.store.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !class.Active {
		return nil, ErrClassNotFound
	}
	if class.IsFull() {
		return nil, &CapacityError{
			ClassID:         class.ID,
			MaxStudents:     class.MaxStudents,
			CurrentStudents: class.CurrentStudents,
		}
	}

	existing, err := e.store.FindRegistration(ctx, studentID, classID)
	if err != nil && !errors.Is(err, ErrRegistrationNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRegistration
	}

	if class.IsFree() {
		return e.commitFree(ctx, student, class)
	}
	return e.initiatePaid(ctx, student, class)
}

func (e *Engine) commitFree(ctx context.Context, student *Student, class *ClassSession) (*RegistrationResult, error) {
	now := e.now()
	reg := Registration{
		ID:            RegistrationID(e.newID()),
		StudentID:     student.ID,
		ClassID:       class.ID,
		PaymentAmount: decimal.Zero,
		PaymentStatus: PaymentPaid,
		Status:        RegistrationRegistered,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.WithTx(ctx, func(l Ledger) error {
		if err := l.InsertRegistration(ctx, reg); err != nil {
			return err
		}
		reserved, err := l.ReserveSeat(ctx, class.ID)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrRaceLost
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRaceLost) {
			e.log.Warn("free registration lost seat race",
				"class_id", class.ID, "student_id", student.ID)
		}
		return nil, err
	}

	e.log.Info("registered for free class",
		"registration_id", reg.ID, "class_id", class.ID, "student_id", student.ID)
	return &RegistrationResult{Registration: &reg}, nil
}

func (e *Engine) initiatePaid(ctx context.Context, student *Student, class *ClassSession) (*RegistrationResult, error) {
	description := fmt.Sprintf("Registration for %s", class.Title)
	ticket, err := e.requestPayment(ctx, PaymentRequest{
		Amount:      class.Price,
		CallbackURL: e.registrationCallbackURL,
		Description: description,
		Email:       student.Email,
		Mobile:      student.Phone,
	})
	if err != nil {
		e.log.Warn("payment initiation failed",
			"class_id", class.ID, "student_id", student.ID, "error", err)
		return nil, err
	}

	now := e.now()
	reg := Registration{
		ID:               RegistrationID(e.newID()),
		StudentID:        student.ID,
		ClassID:          class.ID,
		PaymentAmount:    class.Price,
		PaymentStatus:    PaymentPending,
		PaymentReference: ticket.Reference,
		Status:           RegistrationRegistered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	attempt := PaymentAttempt{
		ID:          PaymentAttemptID(e.newID()),
		StudentID:   student.ID,
		Amount:      class.Price,
		Reference:   ticket.Reference,
		Purpose:     PurposeRegistration,
		Description: description,
		CreatedAt:   now,
	}

	err = e.store.WithTx(ctx, func(l Ledger) error {
		if err := l.InsertRegistration(ctx, reg); err != nil {
			return err
		}
		return l.InsertPaymentAttempt(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("payment initiated for class",
		"registration_id", reg.ID, "class_id", class.ID,
		"student_id", student.ID, "reference", ticket.Reference)
	return &RegistrationResult{Registration: &reg, RedirectURL: ticket.RedirectURL}, nil
}

// requestPayment normalizes gateway failures to ErrPaymentInitiationFailed.
func (e *Engine) requestPayment(ctx context.Context, req PaymentRequest) (*PaymentTicket, error) {
	ticket, err := e.gateway.RequestPayment(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrPaymentInitiationFailed) {
			err = fmt.Errorf("%w: %w", ErrPaymentInitiationFailed, err)
		}
		return nil, err
	}
	if ticket == nil || ticket.Reference == "" {
		return nil, fmt.Errorf("%w: gateway returned no reference", ErrPaymentInitiationFailed)
	}
	return ticket, nil
}

// =============================================================================
// PAYMENT CALLBACK
// =============================================================================

// HandlePaymentCallback reconciles a gateway callback for a class payment.
//
// It is safe to call any number of times, concurrently, with the same
// reference: a resolved registration is returned unchanged with the outcome
// of its original resolution, and the seat increment only happens on the
// delivery that wins the pending→paid transition.
func (e *Engine) HandlePaymentCallback(ctx context.Context, reference string, status GatewayStatus) (*CallbackResult, error) {
	if reference == "" {
		if !status.Proceeding() {
			return &CallbackResult{Outcome: OutcomeFailed}, nil
		}
		return &CallbackResult{Outcome: OutcomeNotFound}, ErrRegistrationNotFound
	}

	reg, err := e.store.GetRegistrationByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			if !status.Proceeding() {
				return &CallbackResult{Outcome: OutcomeFailed}, nil
			}
			e.log.Warn("payment callback for unknown reference", "reference", reference)
			return &CallbackResult{Outcome: OutcomeNotFound}, err
		}
		return &CallbackResult{Outcome: OutcomeError}, err
	}

	if reg.PaymentStatus != PaymentPending {
		return resolved(reg), nil
	}
	if !status.Proceeding() {
		return e.failRegistration(ctx, reg, "payment cancelled at gateway")
	}
	return e.settle(ctx, reg)
}

// settle verifies a pending registration with the gateway and applies the
// verdict. Shared by the callback and the reconciler.
func (e *Engine) settle(ctx context.Context, reg *Registration) (*CallbackResult, error) {
	verdict, err := e.gateway.VerifyPayment(ctx, reg.PaymentAmount, reg.PaymentReference)
	if err != nil {
		if !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		e.log.Error("payment verification unavailable",
			"registration_id", reg.ID, "reference", reg.PaymentReference, "error", err)
		return &CallbackResult{Outcome: OutcomeError, Registration: reg}, err
	}

	if !verdict.Succeeded() {
		res, err := e.failRegistration(ctx, reg, "payment not verified by gateway")
		if err != nil || res.Replayed {
			return res, err
		}
		return res, fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, verdict)
	}
	return e.confirm(ctx, reg)
}

func (e *Engine) confirm(ctx context.Context, reg *Registration) (*CallbackResult, error) {
	now := e.now()
	err := e.store.WithTx(ctx, func(l Ledger) error {
		moved, err := l.TransitionPaymentStatus(ctx, reg.ID, PaymentPending, PaymentPaid, "")
		if err != nil {
			return err
		}
		if !moved {
			return errAlreadySettled
		}
		reserved, err := l.ReserveSeat(ctx, reg.ClassID)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrRaceLost
		}
		_, err = l.ConfirmPaymentAttempt(ctx, reg.PaymentReference, now)
		return err
	})

	switch {
	case err == nil:
		settled := *reg
		settled.PaymentStatus = PaymentPaid
		settled.UpdatedAt = now
		e.log.Info("class payment confirmed",
			"registration_id", reg.ID, "class_id", reg.ClassID, "reference", reg.PaymentReference)
		return &CallbackResult{Outcome: OutcomeSuccess, Registration: &settled}, nil
	case errors.Is(err, errAlreadySettled):
		return e.reload(ctx, reg)
	case errors.Is(err, ErrRaceLost):
		return e.rejectAfterPayment(ctx, reg)
	default:
		return &CallbackResult{Outcome: OutcomeError, Registration: reg}, err
	}
}

// rejectAfterPayment fails a registration whose class filled up while the
// payer was at the gateway.
func (e *Engine) rejectAfterPayment(ctx context.Context, reg *Registration) (*CallbackResult, error) {
	const note = "class was full when payment was confirmed; refund required"
	now := e.now()

	err := e.store.WithTx(ctx, func(l Ledger) error {
		moved, err := l.TransitionPaymentStatus(ctx, reg.ID, PaymentPending, PaymentFailed, note)
		if err != nil {
			return err
		}
		if !moved {
			return errAlreadySettled
		}
		_, err = l.ConfirmPaymentAttempt(ctx, reg.PaymentReference, now)
		return err
	})
	if errors.Is(err, errAlreadySettled) {
		return e.reload(ctx, reg)
	}
	if err != nil {
		return &CallbackResult{Outcome: OutcomeError, Registration: reg}, err
	}

	e.log.Warn("paid registration rejected: class full",
		"registration_id", reg.ID, "class_id", reg.ClassID, "reference", reg.PaymentReference)

	failed := *reg
	failed.PaymentStatus = PaymentFailed
	failed.Notes = note
	failed.UpdatedAt = now
	return &CallbackResult{Outcome: OutcomeFailed, Registration: &failed}, ErrRaceLost
}

// failRegistration moves a pending registration to failed. If another
// delivery resolved it first, that resolution is returned instead.
func (e *Engine) failRegistration(ctx context.Context, reg *Registration, note string) (*CallbackResult, error) {
	moved, err := e.store.TransitionPaymentStatus(ctx, reg.ID, PaymentPending, PaymentFailed, note)
	if err != nil {
		return &CallbackResult{Outcome: OutcomeError, Registration: reg}, err
	}
	if !moved {
		return e.reload(ctx, reg)
	}

	e.log.Info("class payment failed",
		"registration_id", reg.ID, "reference", reg.PaymentReference, "reason", note)

	failed := *reg
	failed.PaymentStatus = PaymentFailed
	failed.Notes = note
	return &CallbackResult{Outcome: OutcomeFailed, Registration: &failed}, nil
}

func (e *Engine) reload(ctx context.Context, reg *Registration) (*CallbackResult, error) {
	current, err := e.store.GetRegistrationByReference(ctx, reg.PaymentReference)
	if err != nil {
		return &CallbackResult{Outcome: OutcomeError, Registration: reg}, err
	}
	return resolved(current), nil
}

func resolved(reg *Registration) *CallbackResult {
	res := &CallbackResult{Registration: reg, Replayed: true}
	switch reg.PaymentStatus {
	case PaymentPaid:
		res.Outcome = OutcomeSuccess
	case PaymentFailed:
		res.Outcome = OutcomeFailed
	default:
		res.Outcome = OutcomeError
	}
	return res
}

// =============================================================================
// QUERIES
// =============================================================================

// ListRegistrations returns the student's registrations, newest first.
func (e *Engine) ListRegistrations(ctx context.Context, studentID StudentID) ([]RegistrationSummary, error) {
	if studentID == "" {
		return nil, ErrStudentNotFound
	}
	return e.store.ListRegistrationsByStudent(ctx, studentID)
}
