/*
handlers.go - HTTP API handlers for class registration and payments

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, authentication context and delegates to the engine
  and store.

ENDPOINTS:
  Auth:
    POST   /api/auth/register                  Student signup
    POST   /api/auth/login                     Student login
    GET    /api/auth/me                        Current student + balance
    GET    /api/auth/check                     Session status, never 401
    POST   /api/auth/logout                    Clear the session cookie
    POST   /api/admin/login                    Admin login
    GET    /api/admin/me                       Current admin
    POST   /api/admin/logout                   Clear the session cookie

  Classes:
    GET    /api/classes                        List (type, skill_level, date)
    GET    /api/classes/available              Active, upcoming, not full
    GET    /api/classes/{id}                   Get class
    POST   /api/classes                        Create (admin)
    PUT    /api/classes/{id}                   Update (admin)
    DELETE /api/classes/{id}                   Delete (admin)

  Products:
    GET    /api/products                       List (category)
    GET    /api/products/{id}                  Get product
    POST/PUT/DELETE /api/products[/{id}]       Admin CRUD

  Registrations:
    POST   /api/registrations                  Register for a class
    GET    /api/registrations/my               Caller's registrations
    GET    /api/registrations/payment-callback Gateway redirect target

  Payments:
    POST   /api/payments/balance               Top up balance
    POST   /api/payments/cart                  Pay for a shop cart
    GET    /api/payments/callback              Gateway redirect target

  Admin:
    GET    /api/admin/students                 List students
    GET    /api/admin/students/{id}            Get student
    GET    /api/admin/reconcile                Last/next reconciliation run
    POST   /api/admin/reconcile                Run reconciliation now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business rule rejections (full, duplicate)
  - 401: Missing or invalid token, bad credentials
  - 403: Wrong role
  - 404: Resource not found
  - 503: Payment gateway unreachable
  - 500: Internal errors (logged, details withheld)

  Payment callbacks never answer with an error body: the payer's browser is
  always redirected to the frontend with ?payment=<outcome>.

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Authentication middleware
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
	"github.com/warp/swim-engine/identity"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config holds the HTTP-layer settings.
type Config struct {
	// FrontendURL is where payment callbacks redirect.
	FrontendURL       string
	AdminUsername     string
	AdminPasswordHash string
	CookieSecure      bool
	CORSOrigins       []string
	Logger            *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *booking.Engine
	Store      booking.Store
	Tokens     *identity.Issuer
	Reconciler *ReconciliationScheduler

	cfg      Config
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(engine *booking.Engine, store booking.Store, tokens *identity.Issuer, reconciler *ReconciliationScheduler, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:     engine,
		Store:      store,
		Tokens:     tokens,
		Reconciler: reconciler,
		cfg:        cfg,
		log:        logger,
		validate:   v,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// RegisterStudent creates a student account and logs it in.
func (h *Handler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req RegisterStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		h.writeInternal(w, r, "hash password", err)
		return
	}

	swimming := booking.SwimmingType(req.SwimmingType)
	if swimming == "" {
		swimming = booking.SwimmingNormal
	}
	skill := booking.SkillLevel(req.SkillLevel)
	if skill == "" {
		skill = booking.SkillBeginner
	}
	student := booking.Student{
		ID:           booking.StudentID(h.newID()),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		PasswordHash: hash,
		Balance:      decimal.Zero,
		SwimmingType: swimming,
		SkillLevel:   skill,
		Active:       true,
		CreatedAt:    h.now(),
	}
	if err := h.Store.CreateStudent(r.Context(), student); err != nil {
		h.writeDomainError(w, r, "Failed to create account", err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, &student)
}

// Login authenticates a student by email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	student, err := h.Store.GetStudentByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, booking.ErrStudentNotFound) {
		h.writeInternal(w, r, "get student", err)
		return
	}
	if student == nil || identity.CheckPassword(student.PasswordHash, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if !student.Active {
		writeError(w, http.StatusForbidden, "Account is disabled", nil)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, student)
}

// Me returns the authenticated student's profile and balance.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	student, err := h.Store.GetStudent(r.Context(), booking.StudentID(p.Subject))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(student))
}

// AdminLogin checks the configured admin credentials.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.AdminUsername)) == 1
	passErr := identity.CheckPassword(h.cfg.AdminPasswordHash, req.Password)
	if !userOK || passErr != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.Tokens.Issue(identity.Principal{Subject: req.Username, Role: identity.RoleAdmin, Name: req.Username})
	if err != nil {
		h.writeInternal(w, r, "issue token", err)
		return
	}
	expires := h.now().Add(h.Tokens.TTL())
	h.setTokenCookie(w, token, expires)
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires.Format(time.RFC3339)})
}

// Logout clears the access_token cookie. Bearer tokens stay valid until they
// expire; clients drop them on their side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Check reports whether the caller is signed in. It never answers 401, so a
// frontend can poll it on page load.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, AuthCheckResponse{})
		return
	}
	if p.IsAdmin() {
		writeJSON(w, http.StatusOK, AuthCheckResponse{Authenticated: true, Role: string(p.Role)})
		return
	}

	student, err := h.Store.GetStudent(r.Context(), booking.StudentID(p.Subject))
	if errors.Is(err, booking.ErrStudentNotFound) {
		writeJSON(w, http.StatusOK, AuthCheckResponse{})
		return
	}
	if err != nil {
		h.writeInternal(w, r, "get student", err)
		return
	}
	if !student.Active {
		writeJSON(w, http.StatusOK, AuthCheckResponse{})
		return
	}
	dto := toStudentDTO(student)
	writeJSON(w, http.StatusOK, AuthCheckResponse{Authenticated: true, Role: string(p.Role), Student: &dto})
}

func (h *Handler) AdminMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, AdminDTO{Username: p.Subject, Role: string(p.Role)})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, student *booking.Student) {
	token, err := h.Tokens.Issue(identity.Principal{
		Subject: string(student.ID),
		Role:    identity.RoleStudent,
		Name:    student.Name,
	})
	if err != nil {
		h.writeInternal(w, r, "issue token", err)
		return
	}
	expires := h.now().Add(h.Tokens.TTL())
	h.setTokenCookie(w, token, expires)

	dto := toStudentDTO(student)
	writeJSON(w, status, TokenResponse{
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
		Student:   &dto,
	})
}

// =============================================================================
// STUDENT ADMIN HANDLERS
// =============================================================================

// ListStudents returns every student account with its balance.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.writeInternal(w, r, "list students", err)
		return
	}
	dtos := make([]StudentDTO, len(students))
	for i := range students {
		dtos[i] = toStudentDTO(&students[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := h.Store.GetStudent(r.Context(), booking.StudentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(student))
}

// =============================================================================
// CLASS HANDLERS
// =============================================================================

// ListClasses returns classes ordered by start time.
// Query: type, skill_level, date (YYYY-MM-DD). Admins may add
// include_inactive=true.
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.ClassFilter{
		Type:       booking.ClassType(q.Get("type")),
		SkillLevel: booking.SkillLevel(q.Get("skill_level")),
	}
	if date := q.Get("date"); date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		filter.Day = &day
	}
	if p, ok := PrincipalFrom(r.Context()); ok && p.IsAdmin() && q.Get("include_inactive") == "true" {
		filter.IncludeInactive = true
	}

	classes, err := h.Store.ListClasses(r.Context(), filter)
	if err != nil {
		h.writeInternal(w, r, "list classes", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTOs(classes))
}

// ListAvailableClasses returns active upcoming classes with free seats.
func (h *Handler) ListAvailableClasses(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	classes, err := h.Store.ListClasses(r.Context(), booking.ClassFilter{AvailableAt: &now})
	if err != nil {
		h.writeInternal(w, r, "list available classes", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTOs(classes))
}

// GetClass returns a single class.
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	class, err := h.Store.GetClass(r.Context(), booking.ClassID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get class", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(*class))
}

// CreateClass creates a class.
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req ClassRequest
	if !h.decode(w, r, &req) {
		return
	}

	class := req.toClass(booking.ClassID(h.newID()), h.now())
	if err := h.Store.CreateClass(r.Context(), class); err != nil {
		h.writeDomainError(w, r, "Failed to create class", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClassDTO(class))
}

// UpdateClass replaces the admin-editable fields of a class.
func (h *Handler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	id := booking.ClassID(chi.URLParam(r, "id"))
	var req ClassRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Store.UpdateClass(r.Context(), req.toClass(id, h.now())); err != nil {
		h.writeDomainError(w, r, "Failed to update class", err)
		return
	}
	class, err := h.Store.GetClass(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get class", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(*class))
}

// DeleteClass deletes a class that has no registrations.
func (h *Handler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteClass(r.Context(), booking.ClassID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, "Failed to delete class", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns active products. Query: category.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context(), booking.ProductCategory(r.URL.Query().Get("category")))
	if err != nil {
		h.writeInternal(w, r, "list products", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Store.GetProduct(r.Context(), booking.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*product))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product := req.toProduct(booking.ProductID(h.newID()), h.now())
	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		h.writeDomainError(w, r, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := booking.ProductID(chi.URLParam(r, "id"))
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	existing, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get product", err)
		return
	}
	product := req.toProduct(id, h.now())
	product.CreatedAt = existing.CreatedAt
	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		h.writeDomainError(w, r, "Failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteProduct(r.Context(), booking.ProductID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REGISTRATION HANDLERS
// =============================================================================

// CreateRegistration registers the caller for a class.
// Free classes: 201 with the registration. Paid classes: 200 with the
// gateway URL the client must send the payer to.
func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())

	result, err := h.Engine.RegisterForClass(r.Context(), booking.StudentID(p.Subject), booking.ClassID(req.ClassID))
	if err != nil {
		h.writeDomainError(w, r, "Registration failed", err)
		return
	}

	if result.RequiresPayment() {
		writeJSON(w, http.StatusOK, PaymentRequiredResponse{
			PaymentURL:   result.RedirectURL,
			Registration: toRegistrationDTO(*result.Registration),
		})
		return
	}
	writeJSON(w, http.StatusCreated, toRegistrationDTO(*result.Registration))
}

// ListMyRegistrations returns the caller's registrations, newest first.
func (h *Handler) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	regs, err := h.Engine.ListRegistrations(r.Context(), booking.StudentID(p.Subject))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list registrations", err)
		return
	}
	dtos := make([]RegistrationDTO, len(regs))
	for i, reg := range regs {
		dtos[i] = toRegistrationSummaryDTO(reg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegistrationPaymentCallback is where the gateway sends the payer back
// after a class payment. Query: Authority, Status.
func (h *Handler) RegistrationPaymentCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.Engine.HandlePaymentCallback(r.Context(), q.Get("Authority"), booking.GatewayStatus(q.Get("Status")))
	h.redirectAfterPayment(w, r, result, err, "")
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ChargeBalance starts a balance top-up payment.
func (h *Handler) ChargeBalance(w http.ResponseWriter, r *http.Request) {
	var req ChargeBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())

	checkout, err := h.Engine.ChargeBalance(r.Context(), booking.StudentID(p.Subject), decimal.NewFromInt(req.Amount))
	if err != nil {
		h.writeDomainError(w, r, "Payment request failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(checkout))
}

// CheckoutCart starts a payment for a shop cart priced from the catalog.
func (h *Handler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	var req CartCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFrom(r.Context())

	items := make([]booking.CartItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = booking.CartItem{ProductID: booking.ProductID(it.ProductID), Quantity: it.Quantity}
	}

	checkout, err := h.Engine.CheckoutCart(r.Context(), booking.StudentID(p.Subject), items)
	if err != nil {
		h.writeDomainError(w, r, "Checkout failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(checkout))
}

// WalletPaymentCallback is the gateway return URL for balance and cart
// payments. Query: Authority, Status.
func (h *Handler) WalletPaymentCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.Engine.HandleWalletCallback(r.Context(), q.Get("Authority"), booking.GatewayStatus(q.Get("Status")))

	var kind string
	if result != nil && result.Attempt != nil {
		kind = string(result.Attempt.Purpose)
	}
	h.redirectAfterPayment(w, r, result, err, kind)
}

func toCheckoutResponse(c *booking.Checkout) CheckoutResponse {
	return CheckoutResponse{
		PaymentURL: c.RedirectURL,
		Amount:     money(c.Attempt.Amount),
		Reference:  c.Attempt.Reference,
	}
}

// redirectAfterPayment sends the payer's browser back to the frontend
// dashboard with the outcome. It never writes an error body.
func (h *Handler) redirectAfterPayment(w http.ResponseWriter, r *http.Request, result *booking.CallbackResult, err error, kind string) {
	outcome := booking.OutcomeError
	if result != nil {
		outcome = result.Outcome
	}
	if err != nil && outcome == booking.OutcomeError {
		h.log.Error("payment callback failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}

	q := url.Values{}
	q.Set("payment", string(outcome))
	if kind != "" {
		q.Set("type", kind)
	}
	http.Redirect(w, r, h.cfg.FrontendURL+"/dashboard?"+q.Encode(), http.StatusFound)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetReconcileStatus returns the last reconciliation run and the next
// scheduled one.
func (h *Handler) GetReconcileStatus(w http.ResponseWriter, r *http.Request) {
	resp := ReconcileStatusResponse{LastRun: h.Reconciler.LastRun()}
	if next := h.Reconciler.NextRunTime(); !next.IsZero() {
		resp.NextRun = next.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerReconcile re-verifies stale pending payments now.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	run := h.Reconciler.RunNow(r.Context())
	if run.Error != "" {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", errors.New(run.Error))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			writeError(w, http.StatusBadRequest, "Validation failed", fields)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case booking.IsNotFound(err):
		return http.StatusNotFound
	case booking.IsClientError(err):
		return http.StatusBadRequest
	case booking.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.writeInternal(w, r, message, err)
		return
	}
	writeError(w, status, message, err)
}

func (h *Handler) writeInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.Error("request failed",
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"op", op,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "Internal server error", nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse. details may be an error (its message
// is used) or any JSON-encodable value.
func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
