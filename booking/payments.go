package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Checkout is a payment started for a balance top-up or a cart.
type Checkout struct {
	Attempt     *PaymentAttempt
	RedirectURL string
}

// ChargeBalance starts a gateway payment that credits the student's balance
// once verified.
func (e *Engine) ChargeBalance(ctx context.Context, studentID StudentID, amount decimal.Decimal) (*Checkout, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return e.startCheckout(ctx, student, amount, PurposeBalance, "Balance top-up")
}

// CheckoutCart prices the cart from the catalog and starts a gateway payment
// for the total. Client-side totals are never trusted.
func (e *Engine) CheckoutCart(ctx context.Context, studentID StudentID, items []CartItem) (*Checkout, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "cart is empty"}
	}

	quantities := make(map[ProductID]int)
	for _, item := range items {
		if item.ProductID == "" {
			return nil, &ValidationError{Field: "product_id", Message: "is required"}
		}
		if item.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Message: "must be positive"}
		}
		quantities[item.ProductID] += item.Quantity
	}

	student, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	ids := make([]ProductID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := decimal.Zero
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		qty := quantities[id]
		product, err := e.store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if !product.Active {
			return nil, ErrProductNotFound
		}
		if !product.InStock || product.Quantity < qty {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(qty))))
		lines = append(lines, fmt.Sprintf("%s x%d", product.Name, qty))
	}

	if err := ValidateAmount(total); err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return e.startCheckout(ctx, student, total, PurposeCart, "Cart: "+strings.Join(lines, ", "))
}

func (e *Engine) startCheckout(ctx context.Context, student *Student, amount decimal.Decimal, purpose PaymentPurpose, description string) (*Checkout, error) {
	ticket, err := e.requestPayment(ctx, PaymentRequest{
		Amount:      amount,
		CallbackURL: e.walletCallbackURL,
		Description: description,
		Email:       student.Email,
		Mobile:      student.Phone,
	})
	if err != nil {
		e.log.Warn("payment initiation failed",
			"purpose", purpose, "student_id", student.ID, "error", err)
		return nil, err
	}

	attempt := PaymentAttempt{
		ID:          PaymentAttemptID(e.newID()),
		StudentID:   student.ID,
		Amount:      amount,
		Reference:   ticket.Reference,
		Purpose:     purpose,
		Description: description,
		CreatedAt:   e.now(),
	}
	if err := e.store.InsertPaymentAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	e.log.Info("payment initiated",
		"purpose", purpose, "student_id", student.ID,
		"amount", amount.String(), "reference", ticket.Reference)
	return &Checkout{Attempt: &attempt, RedirectURL: ticket.RedirectURL}, nil
}

// HandleWalletCallback reconciles a gateway callback for a balance top-up or
// cart payment. Registration payments arriving here are handed to
// HandlePaymentCallback. The balance is credited only by the delivery that
// flips the attempt to confirmed.
func (e *Engine) HandleWalletCallback(ctx context.Context, reference string, status GatewayStatus) (*CallbackResult, error) {
	if reference == "" {
		if !status.Proceeding() {
			return &CallbackResult{Outcome: OutcomeFailed}, nil
		}
		return &CallbackResult{Outcome: OutcomeNotFound}, ErrPaymentNotFound
	}

	attempt, err := e.store.GetPaymentAttempt(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			if !status.Proceeding() {
				return &CallbackResult{Outcome: OutcomeFailed}, nil
			}
			e.log.Warn("wallet callback for unknown reference", "reference", reference)
			return &CallbackResult{Outcome: OutcomeNotFound}, err
		}
		return &CallbackResult{Outcome: OutcomeError}, err
	}

	if attempt.Purpose == PurposeRegistration {
		return e.HandlePaymentCallback(ctx, reference, status)
	}
	if attempt.Confirmed {
		return &CallbackResult{Outcome: OutcomeSuccess, Attempt: attempt, Replayed: true}, nil
	}
	if !status.Proceeding() {
		return &CallbackResult{Outcome: OutcomeFailed, Attempt: attempt}, nil
	}

	verdict, err := e.gateway.VerifyPayment(ctx, attempt.Amount, reference)
	if err != nil {
		if !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		e.log.Error("payment verification unavailable", "reference", reference, "error", err)
		return &CallbackResult{Outcome: OutcomeError, Attempt: attempt}, err
	}
	if !verdict.Succeeded() {
		return &CallbackResult{Outcome: OutcomeFailed, Attempt: attempt},
			fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, verdict)
	}

	now := e.now()
	err = e.store.WithTx(ctx, func(l Ledger) error {
		confirmed, err := l.ConfirmPaymentAttempt(ctx, reference, now)
		if err != nil {
			return err
		}
		if !confirmed {
			return errAlreadySettled
		}
		if attempt.Purpose == PurposeBalance {
			return l.CreditBalance(ctx, attempt.StudentID, attempt.Amount)
		}
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return &CallbackResult{Outcome: OutcomeSuccess, Attempt: attempt, Replayed: true}, nil
	}
	if err != nil {
		return &CallbackResult{Outcome: OutcomeError, Attempt: attempt}, err
	}

	confirmed := *attempt
	confirmed.Confirmed = true
	confirmed.ConfirmedAt = &now
	e.log.Info("payment confirmed",
		"purpose", attempt.Purpose, "student_id", attempt.StudentID,
		"amount", attempt.Amount.String(), "reference", reference)
	return &CallbackResult{Outcome: OutcomeSuccess, Attempt: &confirmed}, nil
}
