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
  4. CORS:       Cross-origin requests for the shop frontend

ROUTE GROUPS:
  /api/parts/*         Parts and per-part stock mutations
  /api/counter-sales   Multi-line walk-in sales
  /api/transactions/*  Ledger queries and reversals
  /api/payables/*      Vendor liabilities and settlement
  /api/expenses        Expense listing
  /api/audit           Audit log

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			"Idempotency-Key", "X-Employee-Id", "X-Employee-Name", "X-Employee-Role",
		},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Part routes
		r.Route("/parts", func(r chi.Router) {
			r.Get("/", h.ListParts)
			r.Post("/", h.CreatePart)
			r.Get("/low-stock", h.ListLowStock)
			r.Get("/{id}", h.GetPart)
			r.Get("/{id}/transactions", h.ListPartTransactions)
			r.Post("/{id}/receive", h.ReceiveStock)
			r.Post("/{id}/adjust", h.AdjustStock)
			r.Post("/{id}/issue", h.IssueStock)
			r.Post("/{id}/return", h.ReturnStock)
			r.Post("/{id}/reserve", h.ReserveStock)
			r.Post("/{id}/release", h.ReleaseStock)
		})

		// Counter sale routes
		r.Post("/counter-sales", h.CounterSale)

		// Ledger routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/reverse", h.ReverseTransaction)
		})

		// Payable routes
		r.Route("/payables", func(r chi.Router) {
			r.Get("/", h.ListPayables)
			r.Get("/{id}", h.GetPayable)
			r.Post("/{id}/settle", h.SettlePayable)
		})

		// Expense and audit routes
		r.Get("/expenses", h.ListExpenses)
		r.Get("/audit", h.ListAudit)
	})

	return r
}
