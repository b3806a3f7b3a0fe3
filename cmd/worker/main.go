// Package main provides the entrypoint for the pushgate send-job worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/internal/database"
	"github.com/trovehunt/pushgate/internal/delivery"
	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
	"github.com/trovehunt/pushgate/internal/worker"
	"github.com/trovehunt/pushgate/pkg/vapid"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushgate-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pushgate worker")

	// Worker also exposes a health endpoint for Cloud Run.
	port := getEnvOrDefault("APP_PORT", "8080")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys, err := vapid.KeyPairFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load VAPID keys")
	}

	// Subscription storage
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	subscriptions := subscription.NewService(subscription.NewPostgresRepository(pool), log)

	transport, err := delivery.NewWebPushTransport(delivery.WebPushConfig{
		Keys:       keys,
		Subscriber: getEnvOrDefault("PUSH_SUBSCRIBER", "ops@trovehunt.app"),
		Registry:   resilience.NewRegistry(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize push transport")
	}

	deliveries := delivery.NewService(delivery.Config{
		Transport: transport,
		Store:     subscriptions,
		Logger:    log,
	})

	dispatcher := worker.NewDispatcher(worker.DispatchConfig{
		Deliveries: deliveries,
		Logger:     log,
	})

	// Pub/Sub handler
	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
		SubscriptionName: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "push-send-jobs"),
		Dispatcher:       dispatcher,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
	}
	defer handler.Close() //nolint:errcheck // best effort cleanup

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Receive blocks until the context is cancelled.
	receiveErr := make(chan error, 1)
	go func() {
		receiveErr <- handler.Start(ctx)
	}()

	// Wait for interrupt signal or receive failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down worker")
	case err := <-receiveErr:
		if err != nil {
			log.Error().Err(err).Msg("pubsub receive failed")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	// Let in-flight expired-subscription cleanup finish before exit.
	dispatcher.Drain()

	log.Info().Msg("worker stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
