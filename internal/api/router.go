// Package api provides the HTTP API for the dispatch service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/api/handler"
	"github.com/motis-project/prima-dispatch/internal/api/middleware"
	"github.com/motis-project/prima-dispatch/internal/auth"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
	"github.com/motis-project/prima-dispatch/internal/rideshare"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	JWTService  *auth.JWTService

	TaxiService      *taxi.Service
	RideShareService *rideshare.Service
	HealthService    *healthcheck.Service

	// RequireTLS rejects requests whose X-Forwarded-Proto is not https.
	RequireTLS bool

	// ReadinessChecks are probed by the ops endpoints.
	ReadinessChecks []handler.ReadinessCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "prima-dispatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer
	r.Use(middleware.RequireJSON)                // Reject non-JSON request bodies
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks...)
	whitelistHandler := handler.NewWhitelistHandler(cfg.TaxiService)
	bookingHandler := handler.NewBookingHandler(cfg.TaxiService)
	rideShareHandler := handler.NewRideShareHandler(cfg.RideShareService)
	consistencyHandler := handler.NewConsistencyHandler(cfg.HealthService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.JWTService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Taxi endpoints (authenticated) - whitelist is expensive compute
		r.Route("/taxi", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(expensiveRateLimit).Post("/whitelist", whitelistHandler.Whitelist)
			r.Route("/bookings", func(r chi.Router) {
				r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
				r.Post("/", bookingHandler.Book)
				r.Post("/{requestId}/cancel", bookingHandler.Cancel)
			})
		})

		// Ride share endpoints (authenticated)
		r.Route("/rideshare", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
			r.Post("/bookings", rideShareHandler.Book)
			r.Route("/requests/{requestId}", func(r chi.Router) {
				r.Post("/accept", rideShareHandler.Accept)
				r.Post("/cancel", rideShareHandler.Cancel)
			})
		})

		// Admin endpoints (authenticated) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Post("/consistency", consistencyHandler.Run)
		})
	})

	return r
}
