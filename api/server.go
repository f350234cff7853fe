/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/vacation/*       Request lifecycle and balance
  /api/manager/*        Approve/reject decisions
  /api/hr/*             Schedule and exports
  /api/notifications/*  Inbox
  /api/sweep            Manual sweep trigger (HR)
  /api/employees        Directory

SECURITY NOTE:
  Authentication sits in front of this service; the only identity input
  is the X-Actor-ID header. Role and ownership checks are enforced in
  the domain layer.

SEE ALSO:
  - handlers.go: Handler implementations
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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Request lifecycle (employee-facing)
		r.Route("/vacation", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Post("/", h.CreateRequest)
				r.Put("/{id}", h.EditRequest)
				r.Post("/{id}/confirm", h.ConfirmRequest)
			})
		})

		// Manager decisions
		r.Route("/manager/requests", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
		})

		// HR schedule and exports
		r.Route("/hr", func(r chi.Router) {
			r.Get("/schedule", h.HRSchedule)
			r.Get("/schedule/export", h.HRScheduleExport)
			r.Get("/export", h.HRExport)
		})

		// Notification inbox
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Get("/unread_count", h.UnreadCount)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		// Admin / ops
		r.Post("/sweep", h.TriggerSweep)
		r.Get("/employees", h.ListEmployees)
		r.Get("/health", h.Health)
	})

	return r
}
