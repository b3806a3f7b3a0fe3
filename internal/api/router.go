// Package api provides the HTTP API for pushgate.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/internal/api/handler"
	"github.com/trovehunt/pushgate/internal/api/middleware"
	"github.com/trovehunt/pushgate/internal/auth"
	"github.com/trovehunt/pushgate/internal/delivery"
	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Verifier      *auth.Verifier
	Subscriptions *subscription.Service
	Deliveries    *delivery.Service
	Registry      *resilience.Registry
	Pool          *pgxpool.Pool

	// VAPIDPublicKey is published to clients for subscribing.
	VAPIDPublicKey string
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pushgate"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	pushHandler := handler.NewPushHandler(cfg.Subscriptions, cfg.Deliveries, cfg.VAPIDPublicKey)
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:       cfg.Version,
		BuildTime:     cfg.BuildTime,
		Pool:          cfg.Pool,
		Registry:      cfg.Registry,
		Deliveries:    cfg.Deliveries,
		Subscriptions: cfg.Subscriptions,
	})

	// Auth middleware
	requireAuth := middleware.RequireAuth(cfg.Verifier)
	optionalAuth := middleware.OptionalAuth(cfg.Verifier)

	// Rate limit middleware per endpoint category
	subscribeRateLimit := middleware.RateLimitByIP(middleware.SubscribeRateLimit) // 30 req/min
	sendRateLimit := middleware.RateLimitByUser(middleware.SendRateLimit)         // 10 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// Push endpoints. Subscribe and unsubscribe are public so enrollment
	// works before sign-in; send is operator-only.
	r.Route("/push", func(r chi.Router) {
		r.With(subscribeRateLimit, optionalAuth).Post("/subscribe", pushHandler.Subscribe)
		r.With(subscribeRateLimit).Post("/unsubscribe", pushHandler.Unsubscribe)
		r.With(standardRateLimit).Get("/vapid-public-key", pushHandler.VAPIDPublicKey)

		r.With(sendRateLimit, requireAuth, middleware.RequireScope(auth.ScopeOperator)).
			Post("/send", pushHandler.Send)
	})

	// Ops endpoints (public)
	r.Route("/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		// Status endpoint requires authentication
		r.With(requireAuth).Get("/status", opsHandler.SystemStatus)
	})

	return r
}
