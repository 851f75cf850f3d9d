package routes

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	handlers "github.com/Parts-Partner/PartsPartners-sub001/internal/http"
	mid "github.com/Parts-Partner/PartsPartners-sub001/internal/middleware"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/obs"
)

func GetRoutes(h *handlers.Handler, metrics *obs.Metrics, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)    // proper client IP extraction
	r.Use(middleware.RequestID) // sets request ID header
	r.Use(middleware.Recoverer) // built-in recoverer to avoid panics taking server down

	r.Use(mid.MetricsMiddleware(metrics))
	r.Use(mid.LoggingMiddleware(logger))
	r.Use(mid.TimeoutMiddleware(15 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Get("/suggest", h.Suggest)
		r.Post("/bulk/validate", h.BulkValidate)
	})
	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}
