// Package api serves the operator-facing HTTP surface of the relay: health,
// metrics, channel listing and the reconciliation journal.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/ironpulse/internal/api/middleware"
	"github.com/eldtechnologies/ironpulse/internal/handlers"
)

// NewRouter creates and configures the admin HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, adminTokenHash string) *chi.Mux {
	logger = logger.With().Str("component", "admin").Logger()
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Read-only dashboards may call from other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAdminAuth(adminTokenHash, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		h.JSON(w, http.StatusOK, map[string]string{"name": "ironpulse", "health": "/health"})
	})
	r.Get("/health", h.Health)
	r.Get("/channels", h.ListChannels)
	r.Get("/stats", h.Stats)

	// Operator routes (require admin token)
	if h.JournalEnabled() {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireToken)

			r.Get("/journal", h.ListIncidents)
			r.Post("/journal/{id}/resolve", h.ResolveIncident)
		})
	}

	return r
}
