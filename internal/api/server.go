package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/ultrasense/ultrasense-server/internal/api/handler"
	"github.com/ultrasense/ultrasense-server/internal/config"
	"github.com/ultrasense/ultrasense-server/internal/metrics"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
// rec may be nil to disable metrics.
func NewRouter(h *handler.Handler, rec *metrics.Recorder, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if rec != nil {
		r.Use(rec.Middleware)
	}
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip
	r.Use(BodyLimitMiddleware)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	if rec != nil {
		r.Method(http.MethodGet, "/metrics", rec.Handler())
	}

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// Data routes need storage.
	r.Group(func(r chi.Router) {
		r.Use(h.RequireServices)

		r.Post("/register-token", h.RegisterToken)
		r.Post("/send-distance", h.SendDistance)
		r.Get("/latest-distance", h.LatestDistance)
	})

	return r
}
