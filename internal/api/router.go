// Package api provides the keymint management API HTTP server.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keymint/keymint/internal/api/auth"
	"github.com/keymint/keymint/internal/api/handlers"
	apiMiddleware "github.com/keymint/keymint/internal/api/middleware"
	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/pkg/journal"
	"github.com/keymint/keymint/pkg/materialize"
	"github.com/keymint/keymint/pkg/registry"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /health/stores - Detailed store health
//   - GET /metrics - Prometheus metrics from the given gatherer
//   - POST /api/v1/auth/login - Admin authentication
//   - POST /api/v1/auth/refresh - Token refresh
//   - GET /api/v1/auth/me - Current account info
//   - /api/v1/principals/* - Principal management (admin only)
//   - /api/v1/runs/* - Run history and on-demand materialization (admin only)
func NewRouter(jwtService *auth.JWTService, admin handlers.AdminAccount, reg registry.Store, jnl *journal.Journal, runner *materialize.Runner, metrics prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check handlers
	healthHandler := handlers.NewHealthHandler(reg, jnl)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/stores", healthHandler.Stores)
	})

	// Prometheus metrics - unauthenticated, like health probes
	r.Get("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}).ServeHTTP)

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	authHandler := handlers.NewAuthHandler(admin, jwtService)
	principalsHandler := handlers.NewPrincipalsHandler(reg)
	runsHandler := handlers.NewRunsHandler(jnl, runner)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes - mostly unauthenticated
		r.Route("/auth", func(r chi.Router) {
			// Public endpoints
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Authenticated endpoint
			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.JWTAuth(jwtService))
				r.Get("/me", authHandler.Me)
			})
		})

		// Protected routes - require authentication and the admin role
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))
			r.Use(apiMiddleware.RequireAdmin())

			// Principal management
			r.Route("/principals", func(r chi.Router) {
				r.Post("/", principalsHandler.Create)
				r.Get("/", principalsHandler.List)
				r.Get("/{name}", principalsHandler.Get)
				r.Delete("/{name}", principalsHandler.Delete)

				// Host provisions
				r.Get("/{name}/provisions", principalsHandler.ListProvisions)
				r.Delete("/{name}/provisions/{host}", principalsHandler.RemoveProvision)
			})

			// Run history and on-demand materialization
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", runsHandler.Execute)
				r.Get("/", runsHandler.List)
				r.Get("/{id}", runsHandler.Get)
				r.Delete("/{id}", runsHandler.Delete)
				r.Get("/{id}/results", runsHandler.Results)
			})
		})
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck and metrics requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs in k8s
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
