/*
store.go - Persistence ports for the Registration Engine

PURPOSE:
  Defines the interface between the engine and the database. The engine owns
  the workflow; the store owns atomicity. Every guarantee the engine relies on
  is a single statement at the data-store level, never an in-process lock,
  because several service instances may share one database.

KEY INTERFACES:
  Ledger:  Writes that protect invariants. Usable inside WithTx.
  Catalog: Classes and products (admin CRUD + reads).
  Store:   Ledger + Catalog + students + queries + WithTx.

ATOMIC PRIMITIVES:
  ReserveSeat:             UPDATE classes SET current_students = current_students + 1
                           WHERE id = ? AND active AND current_students < max_students
  TransitionPaymentStatus: UPDATE registrations SET payment_status = <to>
                           WHERE id = ? AND payment_status = <from>
  ConfirmPaymentAttempt:   UPDATE payment_attempts SET confirmed = TRUE
                           WHERE reference = ? AND NOT confirmed
  InsertRegistration:      unique (student_id, class_id) → ErrDuplicateRegistration

  The boolean results report whether the guarded write fired. A false is not
  an error; the engine decides what it means.

IMPLEMENTATIONS:
  - store/sqlite:   SQLite (development, tests, single node)
  - store/postgres: PostgreSQL via pgx (multi-instance deployments)
*/
package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Invariant-protecting writes
// =============================================================================

// Ledger holds the writes the engine composes inside a transaction.
type Ledger interface {
	// InsertRegistration persists a new registration.
	// Returns ErrDuplicateRegistration if (student, class) already exists.
	InsertRegistration(ctx context.Context, reg Registration) error

	// InsertPaymentAttempt persists a new attempt.
	// Returns ErrDuplicateReference if the reference already exists.
	InsertPaymentAttempt(ctx context.Context, attempt PaymentAttempt) error

	// ReserveSeat atomically increments CurrentStudents if the class is
	// active and not full. Returns false when no row matched.
	ReserveSeat(ctx context.Context, classID ClassID) (bool, error)

	// TransitionPaymentStatus moves a registration from one payment status to
	// another if and only if it is currently in 'from'. Notes, when non-empty,
	// replace the registration notes in the same statement.
	TransitionPaymentStatus(ctx context.Context, id RegistrationID, from, to PaymentStatus, notes string) (bool, error)

	// ConfirmPaymentAttempt sets confirmed=true once. Returns false if the
	// attempt was already confirmed or does not exist.
	ConfirmPaymentAttempt(ctx context.Context, reference string, at time.Time) (bool, error)

	// CreditBalance adds amount to the student's balance in one statement.
	CreditBalance(ctx context.Context, studentID StudentID, amount decimal.Decimal) error
}

// =============================================================================
// CATALOG - Classes and products
// =============================================================================

type Catalog interface {
	GetClass(ctx context.Context, id ClassID) (*ClassSession, error)
	ListClasses(ctx context.Context, filter ClassFilter) ([]ClassSession, error)
	CreateClass(ctx context.Context, class ClassSession) error
	// UpdateClass rewrites the admin-editable fields. It never touches
	// CurrentStudents and fails with ErrCapacityBelowEnrolled if MaxStudents
	// would drop below it.
	UpdateClass(ctx context.Context, class ClassSession) error
	// DeleteClass fails with ErrClassHasRegistrations while registrations exist.
	DeleteClass(ctx context.Context, id ClassID) error

	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	ListProducts(ctx context.Context, category ProductCategory) ([]Product, error)
	SaveProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, id ProductID) error
}

// =============================================================================
// STORE - Everything the engine and API need
// =============================================================================

type Store interface {
	Ledger
	Catalog

	CreateStudent(ctx context.Context, student Student) error
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)

	FindRegistration(ctx context.Context, studentID StudentID, classID ClassID) (*Registration, error)
	GetRegistrationByReference(ctx context.Context, reference string) (*Registration, error)
	ListRegistrationsByStudent(ctx context.Context, studentID StudentID) ([]RegistrationSummary, error)
	// ListPendingRegistrations returns pending registrations with a payment
	// reference created before the cutoff, oldest first.
	ListPendingRegistrations(ctx context.Context, createdBefore time.Time) ([]Registration, error)

	GetPaymentAttempt(ctx context.Context, reference string) (*PaymentAttempt, error)

	// WithTx executes fn within a database transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Ledger) error) error

	Ping(ctx context.Context) error
	Close() error
}
