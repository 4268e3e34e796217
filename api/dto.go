/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are JSON integers (toman). decimal.Decimal never leaks into JSON,
  so clients never see "150000" as a string.

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  h.decode, which decodes and validates in one step.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterStudentRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"omitempty,min=10,max=15,numeric"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	SwimmingType string `json:"swimming_type" validate:"omitempty,oneof=normal competition"`
	SkillLevel   string `json:"skill_level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by every login endpoint. The same token is also
// set as the access_token cookie.
type TokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	Student   *StudentDTO `json:"student,omitempty"`
}

type StudentDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Balance      int64  `json:"balance"`
	SwimmingType string `json:"swimming_type"`
	SkillLevel   string `json:"skill_level"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
}

// AuthCheckResponse tells a browser client whether its cookie still holds a
// usable session.
type AuthCheckResponse struct {
	Authenticated bool        `json:"authenticated"`
	Role          string      `json:"role,omitempty"`
	Student       *StudentDTO `json:"student,omitempty"`
}

type AdminDTO struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// CLASSES
// =============================================================================

type ClassDTO struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	StartsAt        string `json:"starts_at"`
	SkillLevel      string `json:"skill_level"`
	MaxStudents     int    `json:"max_students"`
	CurrentStudents int    `json:"current_students"`
	AvailableSpots  int    `json:"available_spots"`
	Price           int64  `json:"price"`
	Instructor      string `json:"instructor"`
	Location        string `json:"location,omitempty"`
	Active          bool   `json:"active"`
	Notes           string `json:"notes,omitempty"`
}

// ClassRequest creates or replaces a class. CurrentStudents is not part of
// the request: seats only change through registrations.
type ClassRequest struct {
	Title           string    `json:"title" validate:"required,max=200"`
	Type            string    `json:"type" validate:"required,oneof=private_12_session parent_child competition_prep open_pool free_trial"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=15,max=240"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	SkillLevel      string    `json:"skill_level" validate:"omitempty,oneof=beginner intermediate advanced all"`
	MaxStudents     int       `json:"max_students" validate:"required,min=1,max=50"`
	Price           int64     `json:"price" validate:"min=0,max=1000000000000"`
	Instructor      string    `json:"instructor" validate:"required,oneof=first_coach second_coach both_coaches"`
	Location        string    `json:"location"`
	Active          *bool     `json:"active"`
	Notes           string    `json:"notes"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	InStock     bool   `json:"in_stock"`
	Quantity    int    `json:"quantity"`
	Brand       string `json:"brand,omitempty"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
}

type ProductRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Price       int64  `json:"price" validate:"min=0,max=1000000000000"`
	Category    string `json:"category" validate:"required,oneof=swimwear swimgoggles swimfins swimequipment"`
	Description string `json:"description"`
	Image       string `json:"image" validate:"omitempty,url"`
	InStock     *bool  `json:"in_stock"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	Active      *bool  `json:"active"`
	Brand       string `json:"brand"`
	Size        string `json:"size"`
	Color       string `json:"color"`
}

// =============================================================================
// REGISTRATIONS
// =============================================================================

type CreateRegistrationRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

type RegistrationDTO struct {
	ID               string `json:"id"`
	StudentID        string `json:"student_id"`
	ClassID          string `json:"class_id"`
	PaymentAmount    int64  `json:"payment_amount"`
	PaymentStatus    string `json:"payment_status"`
	PaymentReference string `json:"payment_reference,omitempty"`
	Status           string `json:"status"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"created_at"`

	// Populated in the student's registration list.
	Class *RegistrationClassDTO `json:"class,omitempty"`
}

type RegistrationClassDTO struct {
	Title      string `json:"title"`
	Type       string `json:"type"`
	StartsAt   string `json:"starts_at"`
	Instructor string `json:"instructor"`
	Location   string `json:"location,omitempty"`
}

// PaymentRequiredResponse is returned when a registration needs payment.
type PaymentRequiredResponse struct {
	PaymentURL   string          `json:"payment_url"`
	Registration RegistrationDTO `json:"registration"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type ChargeBalanceRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,max=1000000000000"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CartCheckoutRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CheckoutResponse struct {
	PaymentURL string `json:"payment_url"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference"`
}

// =============================================================================
// SCENARIOS / ADMIN
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ReconcileStatusResponse struct {
	LastRun *ReconcileRun `json:"last_run"`
	NextRun string        `json:"next_run,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) int64 { return d.IntPart() }

func toStudentDTO(s *booking.Student) StudentDTO {
	return StudentDTO{
		ID:           string(s.ID),
		Name:         s.Name,
		Email:        s.Email,
		Phone:        s.Phone,
		Balance:      money(s.Balance),
		SwimmingType: string(s.SwimmingType),
		SkillLevel:   string(s.SkillLevel),
		Active:       s.Active,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

func toClassDTO(c booking.ClassSession) ClassDTO {
	return ClassDTO{
		ID:              string(c.ID),
		Title:           c.Title,
		Type:            string(c.Type),
		Description:     c.Description,
		DurationMinutes: c.DurationMinutes,
		StartsAt:        c.StartsAt.Format(time.RFC3339),
		SkillLevel:      string(c.SkillLevel),
		MaxStudents:     c.MaxStudents,
		CurrentStudents: c.CurrentStudents,
		AvailableSpots:  c.AvailableSpots(),
		Price:           money(c.Price),
		Instructor:      string(c.Instructor),
		Location:        c.Location,
		Active:          c.Active,
		Notes:           c.Notes,
	}
}

func toClassDTOs(classes []booking.ClassSession) []ClassDTO {
	dtos := make([]ClassDTO, len(classes))
	for i, c := range classes {
		dtos[i] = toClassDTO(c)
	}
	return dtos
}

func toProductDTO(p booking.Product) ProductDTO {
	return ProductDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Price:       money(p.Price),
		Category:    string(p.Category),
		Description: p.Description,
		Image:       p.Image,
		InStock:     p.InStock,
		Quantity:    p.Quantity,
		Brand:       p.Brand,
		Size:        p.Size,
		Color:       p.Color,
	}
}

func toRegistrationDTO(r booking.Registration) RegistrationDTO {
	return RegistrationDTO{
		ID:               string(r.ID),
		StudentID:        string(r.StudentID),
		ClassID:          string(r.ClassID),
		PaymentAmount:    money(r.PaymentAmount),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		Status:           string(r.Status),
		Notes:            r.Notes,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

func toRegistrationSummaryDTO(s booking.RegistrationSummary) RegistrationDTO {
	dto := toRegistrationDTO(s.Registration)
	dto.Class = &RegistrationClassDTO{
		Title:      s.ClassTitle,
		Type:       string(s.ClassType),
		StartsAt:   s.ClassStartsAt.Format(time.RFC3339),
		Instructor: string(s.ClassInstructor),
		Location:   s.ClassLocation,
	}
	return dto
}

func (req ClassRequest) toClass(id booking.ClassID, now time.Time) booking.ClassSession {
	skill := booking.SkillLevel(req.SkillLevel)
	if skill == "" {
		skill = booking.SkillAll
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return booking.ClassSession{
		ID:              id,
		Title:           req.Title,
		Type:            booking.ClassType(req.Type),
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		StartsAt:        req.StartsAt.UTC(),
		SkillLevel:      skill,
		MaxStudents:     req.MaxStudents,
		Price:           decimal.NewFromInt(req.Price),
		Instructor:      booking.Instructor(req.Instructor),
		Location:        req.Location,
		Active:          active,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (req ProductRequest) toProduct(id booking.ProductID, now time.Time) booking.Product {
	inStock, active := true, true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	if req.Active != nil {
		active = *req.Active
	}
	return booking.Product{
		ID:          id,
		Name:        req.Name,
		Price:       decimal.NewFromInt(req.Price),
		Category:    booking.ProductCategory(req.Category),
		Description: req.Description,
		Image:       req.Image,
		InStock:     inStock,
		Quantity:    req.Quantity,
		Active:      active,
		Brand:       req.Brand,
		Size:        req.Size,
		Color:       req.Color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
