package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"

	"github.com/s1natex/owned-tasks-api/internal/config"
	"github.com/s1natex/owned-tasks-api/internal/middleware"
	"github.com/s1natex/owned-tasks-api/internal/tasks"
)

const healthTimeout = 2 * time.Second

// newRouter wires the health and metrics endpoints, task routes, and middleware stack
func newRouter(cfg config.Config, svc *tasks.Service, tp trace.TracerProvider, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// RequestID first so the logger, tracer and error bodies can use it
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.HTTP.HandlerTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Trace-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.TracingMiddleware(tp))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ping(ctx); err != nil {
			logger.Warn("health_check_failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(middleware.AuthConfig{
			Mode:      middleware.AuthMode(cfg.Auth.Mode),
			APIKeys:   cfg.Auth.APIKeys,
			JWTSecret: cfg.Auth.JWTSecret,
			JWTIssuer: cfg.Auth.JWTIssuer,
		}))
		r.Use(middleware.RateLimitMiddleware(middleware.NewClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))

		tasks.RegisterRoutes(r, svc, logger)
	})

	return r
}
