/*
types.go - Core domain types for class registration and payments

PURPOSE:
  Defines the records the Registration Engine works with: class sessions,
  registrations, payment attempts, students and catalog products. These are
  plain data; all state transitions happen in engine.go through the Store.

MONEY:
  Amounts are decimal.Decimal in the domain and always whole, non-negative
  numbers of toman (the gateway's unit), at most MaxAmount. Stores persist
  them as integers so balance credits can be a single atomic UPDATE.

STATE MACHINES:
  Registration.PaymentStatus:

    pending ──verify ok──▶ paid
       │
       └──cancel / verify rejected / class full at commit──▶ failed

  paid and failed are terminal. Every transition is a conditional update
  keyed on the current status being pending.

  PaymentAttempt.Confirmed: false ──▶ true, once.

SEE ALSO:
  - engine.go: Registration Engine (the only writer of CurrentStudents)
  - store.go: Persistence ports
  - errors.go: Error taxonomy
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClassID string
type StudentID string
type RegistrationID string
type PaymentAttemptID string
type ProductID string

// =============================================================================
// MONEY
// =============================================================================

// MaxAmount caps any single amount. Totals and balance credits stay far
// inside int64 and the gateway's integer field.
var MaxAmount = decimal.NewFromInt(1_000_000_000_000)

// ValidateAmount checks that an amount is a whole number in [0, MaxAmount].
func ValidateAmount(a decimal.Decimal) error {
	if a.IsNegative() || !a.IsInteger() || a.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// =============================================================================
// CLASS SESSION
// =============================================================================

type ClassType string

const (
	ClassPrivate12Session ClassType = "private_12_session"
	ClassParentChild      ClassType = "parent_child"
	ClassCompetitionPrep  ClassType = "competition_prep"
	ClassOpenPool         ClassType = "open_pool"
	ClassFreeTrial        ClassType = "free_trial"
)

type Instructor string

const (
	InstructorFirst  Instructor = "first_coach"
	InstructorSecond Instructor = "second_coach"
	InstructorBoth   Instructor = "both_coaches"
)

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillAll          SkillLevel = "all"
)

// ClassSession is a scheduled, capacity-limited swim class.
//
// INVARIANT: 0 <= CurrentStudents <= MaxStudents. CurrentStudents only moves
// by +1 through Ledger.ReserveSeat.
type ClassSession struct {
	ID              ClassID
	Title           string
	Type            ClassType
	Description     string
	DurationMinutes int
	StartsAt        time.Time
	SkillLevel      SkillLevel
	MaxStudents     int
	CurrentStudents int
	Price           decimal.Decimal
	Instructor      Instructor
	Location        string
	Active          bool
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *ClassSession) AvailableSpots() int { return c.MaxStudents - c.CurrentStudents }
func (c *ClassSession) IsFull() bool        { return c.CurrentStudents >= c.MaxStudents }
func (c *ClassSession) IsFree() bool        { return c.Price.IsZero() }

// ClassFilter narrows catalog listings. Zero values mean "any".
type ClassFilter struct {
	Type       ClassType
	SkillLevel SkillLevel
	// Day restricts to classes starting within [Day, Day+24h).
	Day *time.Time
	// AvailableAt restricts to active classes starting at or after the
	// given time that still have free seats.
	AvailableAt *time.Time
	// IncludeInactive lists deactivated classes too (admin views).
	IncludeInactive bool
}

// =============================================================================
// REGISTRATION
// =============================================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationCompleted  RegistrationStatus = "completed"
)

// Registration is a student's claim on a seat in a class.
// At most one exists per (StudentID, ClassID).
type Registration struct {
	ID               RegistrationID
	StudentID        StudentID
	ClassID          ClassID
	PaymentAmount    decimal.Decimal
	PaymentStatus    PaymentStatus
	PaymentReference string
	Status           RegistrationStatus
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RegistrationSummary is a registration joined with the class fields shown
// in a student's registration list.
type RegistrationSummary struct {
	Registration
	ClassTitle      string
	ClassType       ClassType
	ClassStartsAt   time.Time
	ClassInstructor Instructor
	ClassLocation   string
}

// =============================================================================
// PAYMENT ATTEMPT
// =============================================================================

type PaymentPurpose string

const (
	PurposeRegistration PaymentPurpose = "registration"
	PurposeBalance      PaymentPurpose = "balance"
	PurposeCart         PaymentPurpose = "cart"
)

// PaymentAttempt records one request to the gateway. Reference is the
// gateway authority and the join key used on callback.
type PaymentAttempt struct {
	ID          PaymentAttemptID
	StudentID   StudentID
	Amount      decimal.Decimal
	Reference   string
	Purpose     PaymentPurpose
	Description string
	Confirmed   bool
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// =============================================================================
// STUDENT
// =============================================================================

type SwimmingType string

const (
	SwimmingNormal      SwimmingType = "normal"
	SwimmingCompetition SwimmingType = "competition"
)

type Student struct {
	ID           StudentID
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Balance      decimal.Decimal
	SwimmingType SwimmingType
	SkillLevel   SkillLevel
	Active       bool
	CreatedAt    time.Time
}

// =============================================================================
// PRODUCT
// =============================================================================

type ProductCategory string

const (
	CategorySwimwear      ProductCategory = "swimwear"
	CategorySwimGoggles   ProductCategory = "swimgoggles"
	CategorySwimFins      ProductCategory = "swimfins"
	CategorySwimEquipment ProductCategory = "swimequipment"
)

type Product struct {
	ID          ProductID
	Name        string
	Price       decimal.Decimal
	Category    ProductCategory
	Description string
	Image       string
	InStock     bool
	Quantity    int
	Active      bool
	Brand       string
	Size        string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartItem is one line of a cart checkout.
type CartItem struct {
	ProductID ProductID
	Quantity  int
}
