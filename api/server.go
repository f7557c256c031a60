/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. JWT auth:   Everything except login/activate requires a bearer token

ROUTE GROUPS:
  /api/auth/*        Login and activation (public)
  /api/sessions/*    Session scheduling, overlap-gated
  /api/rates/*       Rate records and resolution
  /api/invoices/*    Invoice generation and lifecycle
  /api/paystubs/*    Paystub generation and reversal
  /api/clients/*     Client management
  /api/employees/*   Employee management
  /api/activities/*  Activity definitions
  /api/admin/*       Account management (admin role)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clearbrook/clinic-engine/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/activate", h.Activate)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.ListSessions)
				r.Post("/", h.CreateSession)
				r.Get("/{id}", h.GetSession)
				r.Put("/{id}", h.UpdateSession)
				r.Delete("/{id}", h.DeleteSession)
			})

			r.Route("/rates", func(r chi.Router) {
				r.Get("/", h.ListRates)
				r.Post("/", h.CreateRate)
				r.Get("/resolve", h.ResolveRate)
				r.Put("/{id}", h.UpdateRate)
				r.Delete("/{id}", h.DeleteRate)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.ListInvoices)
				r.Post("/generate", h.GenerateInvoice)
				r.Get("/{number}", h.GetInvoice)
				r.Post("/{number}/status", h.SetInvoiceStatus)
				r.Delete("/{number}", h.DeleteInvoice)
			})

			r.Route("/paystubs", func(r chi.Router) {
				r.Get("/", h.ListPayStubs)
				r.Post("/generate", h.GeneratePayStub)
				r.Get("/{id}", h.GetPayStub)
				r.Delete("/{id}", h.DeletePayStub)
			})

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.CreateClient)
				r.Get("/{id}", h.GetClient)
				r.Put("/{id}", h.UpdateClient)
				r.Delete("/{id}", h.DeleteClient)
			})

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.Post("/", h.CreateEmployee)
				r.Get("/{id}", h.GetEmployee)
				r.Put("/{id}", h.UpdateEmployee)
				r.Delete("/{id}", h.DeleteEmployee)
			})

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", h.ListActivities)
				r.Post("/", h.SaveActivity)
				r.Delete("/{name}", h.DeleteActivity)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.ListUsers)
					r.Post("/", h.CreateUser)
					r.Post("/{email}/lock", h.LockUser)
					r.Post("/{email}/unlock", h.UnlockUser)
				})
			})
		})
	})

	return r
}

// =============================================================================
// AUTH MIDDLEWARE
// =============================================================================

type contextKey string

const claimsKey contextKey = "claims"

// requireAuth validates the bearer token and stashes the claims in the
// request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		claims, err := auth.ParseToken(token, []byte(h.Config.TokenSecret))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the authenticated claims, or nil outside the
// auth middleware.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// requireAdmin gates a subtree on the admin role.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
