/*
errors.go - Error taxonomy for registrations and payments

ERROR CATEGORIES:
  1. Not found     - class, student, registration, payment, product absent
  2. Client errors - capacity, duplicates, invalid input, gateway rejection
  3. Races         - RaceLost: the atomic seat increment matched no row
  4. Infra         - gateway unreachable or malformed (retryable)

All of these are expected outcomes. Handlers map them to status codes via
IsNotFound / IsClientError; anything else is a 500.

USAGE:
  if errors.Is(err, booking.ErrCapacityExceeded) { ... }

  var capErr *booking.CapacityError
  if errors.As(err, &capErr) { log(capErr.MaxStudents) }
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrClassNotFound        = errors.New("class not found")
	ErrStudentNotFound      = errors.New("student not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrProductNotFound      = errors.New("product not found")

	// ErrCapacityExceeded is returned when the class is full at check time.
	ErrCapacityExceeded = errors.New("class is full")

	// ErrDuplicateRegistration is returned when the (student, class) pair is
	// already registered. Stores return it from the unique index violation.
	ErrDuplicateRegistration = errors.New("already registered for this class")

	// ErrRaceLost is returned when the conditional seat increment matched no
	// row: the class filled between the check and the commit.
	ErrRaceLost = errors.New("class filled before registration could be committed")

	ErrPaymentInitiationFailed   = errors.New("payment initiation failed")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")

	// ErrGatewayUnavailable covers transport failures and malformed gateway
	// responses. The affected registration stays pending.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	ErrInvalidAmount         = errors.New("amount must be a whole number between 0 and the maximum")
	ErrInvalidInput          = errors.New("invalid input")
	ErrCapacityBelowEnrolled = errors.New("max students cannot be lower than current students")
	ErrClassHasRegistrations = errors.New("class has registrations")
	ErrOutOfStock            = errors.New("product out of stock")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateReference    = errors.New("duplicate payment reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CapacityError reports a full class.
type CapacityError struct {
	ClassID         ClassID
	MaxStudents     int
	CurrentStudents int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("class %s is full (%d/%d)", e.ClassID, e.CurrentStudents, e.MaxStudents)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// GatewayError carries the gateway code behind a failed request or verify.
// Kind is one of ErrPaymentInitiationFailed, ErrPaymentVerificationFailed or
// ErrGatewayUnavailable.
type GatewayError struct {
	Kind    error
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrProductNotFound)
}

// IsClientError returns true if the error is an expected rejection of the
// caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrRaceLost) ||
		errors.Is(err, ErrPaymentInitiationFailed) ||
		errors.Is(err, ErrPaymentVerificationFailed) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCapacityBelowEnrolled) ||
		errors.Is(err, ErrClassHasRegistrations) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrDuplicateEmail)
}

// IsRetryable returns true if the same call might succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
