/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the web client
  5. Locale:     Accept-Language -> message locale

ROUTE GROUPS:
  /api/users/{id}/*     Per-user settings, punches, withdrawals, time bank
  /api/admin/*          Settlement run
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The user id in the path is trusted.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/edufeq03/app-ponto-sub000/i18n"
	"github.com/edufeq03/app-ponto-sub000/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(Locale)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Route("/punches", func(r chi.Router) {
				r.Get("/", h.ListPunches)
				r.Post("/", h.CreatePunch)
				r.Post("/photo", h.CreatePhotoPunch)
				r.Post("/batch-delete", h.BatchDeletePunches)
				r.Put("/{punchID}", h.CorrectPunch)
				r.Delete("/{punchID}", h.DeletePunch)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", h.ListWithdrawals)
				r.Post("/", h.CreateWithdrawal)
				r.Delete("/{wid}", h.DeleteWithdrawal)
			})

			r.Get("/workdays", h.ListWorkdays)
			r.Get("/balance", h.GetBalance)
			r.Get("/export", h.Export)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/settlements/run", h.RunSettlements)
		})
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

// Locale stores the best Accept-Language match in the request context.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := i18n.Match(r.Header.Get("Accept-Language"))
		next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), locale)))
	})
}
