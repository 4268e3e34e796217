/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RealIP:       Client address behind the reverse proxy
  3. Logger:       Request logging
  4. Recoverer:    Panic recovery (500 instead of crash)
  5. CORS:         Configured frontend origins, credentials allowed
  6. Authenticate: Bearer token or access_token cookie → Principal

ROUTE GROUPS:
  /health                Store ping
  /api/auth/*            Student signup/login/logout/profile
  /api/classes/*         Class catalog (writes: admin)
  /api/products/*        Shop catalog (writes: admin)
  /api/registrations/*   Class registration (student) + gateway callback
  /api/payments/*        Balance and cart payments (student) + gateway callback
  /api/admin/*           Admin login/logout, students, reconciliation
  /api/scenarios/*       Demo scenarios (admin)

  Gateway callbacks are public: the payer's browser arrives from the
  gateway and the reference in the query string is the only key.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(Authenticate(h.Tokens))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.RegisterStudent)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/check", h.Check)
			r.With(RequireStudent).Get("/me", h.Me)
		})

		r.Route("/classes", func(r chi.Router) {
			r.Get("/", h.ListClasses)
			r.Get("/available", h.ListAvailableClasses)
			r.Get("/{id}", h.GetClass)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", h.CreateClass)
				r.Put("/{id}", h.UpdateClass)
				r.Delete("/{id}", h.DeleteClass)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})
		})

		r.Route("/registrations", func(r chi.Router) {
			r.Get("/payment-callback", h.RegistrationPaymentCallback)

			r.Group(func(r chi.Router) {
				r.Use(RequireStudent)
				r.Post("/", h.CreateRegistration)
				r.Get("/my", h.ListMyRegistrations)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/callback", h.WalletPaymentCallback)

			r.Group(func(r chi.Router) {
				r.Use(RequireStudent)
				r.Post("/balance", h.ChargeBalance)
				r.Post("/cart", h.CheckoutCart)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.AdminLogin)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/me", h.AdminMe)
				r.Get("/students", h.ListStudents)
				r.Get("/students/{id}", h.GetStudent)
				r.Get("/reconcile", h.GetReconcileStatus)
				r.Post("/reconcile", h.TriggerReconcile)
			})
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
