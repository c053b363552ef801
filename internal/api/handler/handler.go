// Package handler provides HTTP handlers for all API endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/api/respond"
	"github.com/ultrasense/ultrasense-server/internal/app"
	"github.com/ultrasense/ultrasense-server/internal/cache"
)

// Handler holds shared dependencies for all endpoint handlers. Services are
// attached once storage is connected; until then data routes answer 503.
type Handler struct {
	services atomic.Pointer[app.Services]
	cache    cache.Store
	logger   *slog.Logger

	// latestGen counts invalidations of the latest reading. A cache fill
	// that raced one is dropped.
	latestGen atomic.Uint64
}

// New creates a Handler with shared dependencies.
func New(c cache.Store, logger *slog.Logger) *Handler {
	if c == nil {
		c = cache.New(false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: c, logger: logger}
}

// Attach makes the pipeline available to the data routes and hooks cache
// invalidation into every stored reading.
func (h *Handler) Attach(s *app.Services) {
	s.Readings.OnAppend(h.InvalidateLatest)
	h.services.Store(s)
}

// Ready reports whether services are attached.
func (h *Handler) Ready() bool {
	return h.services.Load() != nil
}

// InvalidateLatest drops the cached latest reading.
func (h *Handler) InvalidateLatest(ctx context.Context, _ alerts.Reading) {
	h.latestGen.Add(1)
	h.cache.Delete(ctx, cache.KeyLatestReading)
}

// RequireServices answers 503 until Attach has been called.
func (h *Handler) RequireServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Ready() {
			respond.WriteError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"Service unavailable: DB not connected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	status := "running"
	if !h.Ready() {
		status = "starting"
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "UltraSense Alert Server",
		"version": "1.0.0",
		"status":  status,
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	s := h.services.Load()
	if s == nil || s.HealthCheck(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns cache statistics for the configured backend.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(r.Context()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NotFound is the fallback for unknown routes. Like the data routes it
// answers 503 while storage is down.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	if !h.Ready() {
		respond.WriteError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"Service unavailable: DB not connected")
		return
	}
	respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Route not found: "+r.URL.RequestURI())
}

// MethodNotAllowed answers known paths used with the wrong verb.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		r.Method+" not allowed on "+r.URL.Path)
}
