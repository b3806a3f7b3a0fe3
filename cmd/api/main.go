// Package main provides the entrypoint for the pushgate API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/internal/api"
	"github.com/trovehunt/pushgate/internal/api/middleware"
	"github.com/trovehunt/pushgate/internal/auth"
	"github.com/trovehunt/pushgate/internal/database"
	"github.com/trovehunt/pushgate/internal/delivery"
	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
	"github.com/trovehunt/pushgate/internal/telemetry"
	"github.com/trovehunt/pushgate/pkg/vapid"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushgate-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pushgate API")

	// Get configuration from environment
	port := getEnvOrDefault("APP_PORT", "8080")
	otlpEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	env := getEnvOrDefault("APP_ENV", "development")

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Load VAPID keys before anything else; without them the service
	// cannot send and clients cannot subscribe.
	keys, err := vapid.KeyPairFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load VAPID keys")
	}

	// Subscription storage: Postgres by default, in-memory for local
	// development (DB_DISABLED=true).
	subscriptions, dbPool := buildSubscriptionService(ctx, log)
	if dbPool != nil {
		defer dbPool.Close()
	}

	// Initialize JWT verifier (tokens are issued by the main TroveHunt API)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	verifier := auth.NewVerifier(auth.VerifierConfig{
		SigningKey: jwtSigningKey,
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://api.trovehunt.app"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "trovehunt-api"),
	})

	// Push transport: direct Web Push by default, hosted relay when
	// PUSH_TRANSPORT=relay.
	registry := resilience.NewRegistry()
	transport, err := buildTransport(keys, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize push transport")
	}

	deliveries := delivery.NewService(delivery.Config{
		Transport: transport,
		Store:     subscriptions,
		Logger:    log,
	})
	log.Info().Msg("delivery service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		Verifier:       verifier,
		Subscriptions:  subscriptions,
		Deliveries:     deliveries,
		Registry:       registry,
		Pool:           dbPool,
		VAPIDPublicKey: keys.PublicKey,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	// Let in-flight expired-subscription cleanup finish.
	deliveries.WaitForCleanup()

	log.Info().Msg("server stopped")
}

// buildSubscriptionService connects to Postgres unless DB_DISABLED=true,
// in which case subscriptions live in memory and vanish on restart.
func buildSubscriptionService(ctx context.Context, log zerolog.Logger) (*subscription.Service, *pgxpool.Pool) {
	if os.Getenv("DB_DISABLED") == "true" {
		log.Warn().Msg("database disabled - subscriptions are stored in memory")
		return subscription.NewService(subscription.NewInMemoryRepository(), log), nil
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	return subscription.NewService(subscription.NewPostgresRepository(pool), log), pool
}

func buildTransport(keys vapid.KeyPair, registry *resilience.Registry) (delivery.Transport, error) {
	if os.Getenv("PUSH_TRANSPORT") == "relay" {
		return delivery.NewRelayTransport(delivery.RelayConfig{
			BaseURL: os.Getenv("RELAY_BASE_URL"),
			APIKey:  os.Getenv("RELAY_API_KEY"),
		})
	}

	return delivery.NewWebPushTransport(delivery.WebPushConfig{
		Keys:       keys,
		Subscriber: getEnvOrDefault("PUSH_SUBSCRIBER", "ops@trovehunt.app"),
		Registry:   registry,
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
