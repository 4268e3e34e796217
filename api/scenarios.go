/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for frontend development and demos. Each scenario creates classes,
	products and students that exercise a specific registration path.

AVAILABLE SCENARIOS:

	sample-catalog:  A week of classes across every type plus a small shop
	free-trial:      One free trial class with a single seat left
	butterfly-class: A paid competition class one seat from full, and a
	                 student with a wallet balance

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create classes and products
 3. Create demo students (password: demoPassword)
 4. Fill seats where the scenario needs a nearly full class

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "free-trial"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	Stores that cannot reset (none today) answer 501.

SEE ALSO:
  - server.go: Admin-only route group
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
	"github.com/warp/swim-engine/identity"
)

const demoPassword = "swim-demo-123"

// resettable is implemented by stores that can wipe all data.
type resettable interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sample-catalog",
		Name:        "Sample Catalog",
		Description: "A week of classes of every type, a small equipment shop and one student",
	},
	{
		ID:          "free-trial",
		Name:        "Free Trial",
		Description: "A free trial class with one seat left; registering takes it without payment",
	},
	{
		ID:          "butterfly-class",
		Name:        "Butterfly Class",
		Description: "Paid competition class one seat from full, for payment and race testing",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "sample-catalog":
		load = h.loadSampleCatalogScenario
	case "free-trial":
		load = h.loadFreeTrialScenario
	case "butterfly-class":
		load = h.loadButterflyClassScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.ResetDatabase(ctx); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
			return
		}
		h.writeInternal(w, r, "reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeInternal(w, r, "load scenario "+req.ScenarioID, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data and forgets the current scenario.
func (h *Handler) ResetDatabase(ctx context.Context) error {
	store, ok := h.Store.(resettable)
	if !ok {
		return errors.ErrUnsupported
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return store.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSampleCatalogScenario(ctx context.Context) error {
	start := nextMorning(h.now())

	classes := []booking.ClassSession{
		h.demoClass("cls-private", "Private lessons (12 sessions)", booking.ClassPrivate12Session,
			start, 45, booking.SkillBeginner, 1, 4500000, booking.InstructorFirst),
		h.demoClass("cls-parent-child", "Parent & child", booking.ClassParentChild,
			start.Add(24*time.Hour), 45, booking.SkillAll, 6, 850000, booking.InstructorSecond),
		h.demoClass("cls-competition", "Competition prep", booking.ClassCompetitionPrep,
			start.Add(48*time.Hour), 90, booking.SkillAdvanced, 8, 1200000, booking.InstructorBoth),
		h.demoClass("cls-open-pool", "Open pool", booking.ClassOpenPool,
			start.Add(72*time.Hour), 60, booking.SkillAll, 20, 150000, booking.InstructorFirst),
		h.demoClass("cls-trial", "Free trial lesson", booking.ClassFreeTrial,
			start.Add(96*time.Hour), 30, booking.SkillBeginner, 4, 0, booking.InstructorSecond),
	}
	for _, c := range classes {
		if err := h.Store.CreateClass(ctx, c); err != nil {
			return err
		}
	}

	products := []booking.Product{
		h.demoProduct("prd-goggles", "Anti-fog goggles", booking.CategorySwimGoggles, 85000, 40),
		h.demoProduct("prd-fins", "Training fins", booking.CategorySwimFins, 320000, 12),
		h.demoProduct("prd-cap", "Silicone cap", booking.CategorySwimEquipment, 60000, 0),
		h.demoProduct("prd-suit", "Competition swimsuit", booking.CategorySwimwear, 1450000, 5),
	}
	for _, p := range products {
		if err := h.Store.SaveProduct(ctx, p); err != nil {
			return err
		}
	}

	_, err := h.demoStudent(ctx, "stu-sara", "Sara Ahmadi", "sara@example.com", decimal.Zero)
	return err
}

func (h *Handler) loadFreeTrialScenario(ctx context.Context) error {
	class := h.demoClass("cls-trial", "Free trial lesson", booking.ClassFreeTrial,
		nextMorning(h.now()), 30, booking.SkillBeginner, 3, 0, booking.InstructorSecond)
	if err := h.Store.CreateClass(ctx, class); err != nil {
		return err
	}

	if _, err := h.demoStudent(ctx, "stu-sara", "Sara Ahmadi", "sara@example.com", decimal.Zero); err != nil {
		return err
	}
	return h.fillSeats(ctx, class, 2)
}

func (h *Handler) loadButterflyClassScenario(ctx context.Context) error {
	class := h.demoClass("cls-butterfly", "Butterfly technique", booking.ClassCompetitionPrep,
		nextMorning(h.now()).Add(24*time.Hour), 60, booking.SkillIntermediate, 3, 950000, booking.InstructorBoth)
	if err := h.Store.CreateClass(ctx, class); err != nil {
		return err
	}

	if _, err := h.demoStudent(ctx, "stu-sara", "Sara Ahmadi", "sara@example.com", decimal.Zero); err != nil {
		return err
	}
	if _, err := h.demoStudent(ctx, "stu-reza", "Reza Karimi", "reza@example.com", decimal.NewFromInt(2000000)); err != nil {
		return err
	}
	return h.fillSeats(ctx, class, 2)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) demoClass(id booking.ClassID, title string, typ booking.ClassType, startsAt time.Time,
	minutes int, skill booking.SkillLevel, maxStudents int, price int64, instructor booking.Instructor) booking.ClassSession {
	now := h.now()
	return booking.ClassSession{
		ID:              id,
		Title:           title,
		Type:            typ,
		DurationMinutes: minutes,
		StartsAt:        startsAt,
		SkillLevel:      skill,
		MaxStudents:     maxStudents,
		Price:           decimal.NewFromInt(price),
		Instructor:      instructor,
		Location:        "Main pool",
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (h *Handler) demoProduct(id booking.ProductID, name string, category booking.ProductCategory, price int64, quantity int) booking.Product {
	now := h.now()
	return booking.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.NewFromInt(price),
		Category:  category,
		InStock:   quantity > 0,
		Quantity:  quantity,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (h *Handler) demoStudent(ctx context.Context, id booking.StudentID, name, email string, balance decimal.Decimal) (*booking.Student, error) {
	hash, err := identity.HashPassword(demoPassword)
	if err != nil {
		return nil, err
	}
	s := booking.Student{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Balance:      balance,
		SwimmingType: booking.SwimmingNormal,
		SkillLevel:   booking.SkillBeginner,
		Active:       true,
		CreatedAt:    h.now(),
	}
	if err := h.Store.CreateStudent(ctx, s); err != nil {
		return nil, err
	}
	return &s, nil
}

// fillSeats enrolls n placeholder students with paid registrations, taking
// seats the same way a confirmed payment does.
func (h *Handler) fillSeats(ctx context.Context, class booking.ClassSession, n int) error {
	for i := 1; i <= n; i++ {
		id := booking.StudentID(fmt.Sprintf("stu-%s-%d", class.ID, i))
		email := fmt.Sprintf("%s-%d@example.com", class.ID, i)
		if _, err := h.demoStudent(ctx, id, fmt.Sprintf("Swimmer %d", i), email, decimal.Zero); err != nil {
			return err
		}

		now := h.now()
		err := h.Store.WithTx(ctx, func(l booking.Ledger) error {
			ok, err := l.ReserveSeat(ctx, class.ID)
			if err != nil {
				return err
			}
			if !ok {
				return booking.ErrCapacityExceeded
			}
			return l.InsertRegistration(ctx, booking.Registration{
				ID:            booking.RegistrationID(h.newID()),
				StudentID:     id,
				ClassID:       class.ID,
				PaymentAmount: class.Price,
				PaymentStatus: booking.PaymentPaid,
				Status:        booking.RegistrationRegistered,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		})
		if err != nil {
			return fmt.Errorf("fill seat %d of %s: %w", i, class.ID, err)
		}
	}
	return nil
}

// nextMorning returns 09:00 UTC on the day after now.
func nextMorning(now time.Time) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}
