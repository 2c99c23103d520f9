// Package api provides the REST API router.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/internal/metrics"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// RateLimiter is the rate limiter instance (optional).
	RateLimiter *RateLimiter
	// Metrics enables HTTP metrics recording (optional).
	Metrics *metrics.Metrics
	// RequestTimeout bounds in-flight requests. Zero applies the default.
	RequestTimeout time.Duration
}

// defaultRequestTimeout must stay above the selector request timeout so
// slow cold-cache selections are not cancelled mid-flight.
const defaultRequestTimeout = 10 * time.Minute

// NewRouter creates a new API router.
func NewRouter(handler *Handler, logger zerolog.Logger) *chi.Mux {
	return NewRouterWithConfig(handler, logger, RouterConfig{})
}

// NewRouterWithConfig creates a new API router with configuration.
func NewRouterWithConfig(handler *Handler, logger zerolog.Logger, config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	if config.Metrics != nil {
		r.Use(NewMetricsMiddleware(config.Metrics))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// Rate limiting (before the handlers for early rejection)
	if config.RateLimiter != nil {
		r.Use(NewRateLimitMiddleware(config.RateLimiter))
	}

	// Health check
	r.Get("/health", handler.HealthCheck)

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/selections", handler.CreateSelection)
		r.Get("/stats", handler.Stats)

		r.Route("/instance-types/{type}", func(r chi.Router) {
			r.Get("/instance-storage", handler.InstanceStorage)
		})
	})

	return r
}
