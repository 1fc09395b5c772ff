// Package main provides the entrypoint for the schedule verification worker.
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

	"github.com/motis-project/prima-dispatch/internal/database"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/routing/googlemaps"
	"github.com/motis-project/prima-dispatch/internal/routing/openrouteservice"
	"github.com/motis-project/prima-dispatch/internal/routing/resilience"
	"github.com/motis-project/prima-dispatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "prima-dispatch-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting dispatch worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Routing is optional for the worker; without it the duration checks are
	// skipped and only the structural checks run.
	var routingService *routing.Service
	var routingProvider routing.Provider
	switch {
	case os.Getenv("ORS_API_KEY") != "":
		routingProvider = openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   os.Getenv("ORS_API_KEY"),
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: resilience.NewRegistry(),
			Logger:   log,
		})
	case os.Getenv("GOOGLE_MAPS_API_KEY") != "":
		routingProvider, err = googlemaps.NewProvider(os.Getenv("GOOGLE_MAPS_API_KEY"), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Google Maps provider")
		}
	default:
		log.Warn().Msg("no routing provider configured - duration checks disabled")
	}
	if routingProvider != nil {
		routingService = routing.NewService(routing.ServiceConfig{
			Provider: routingProvider,
			Logger:   log,
		})
	}

	healthService := healthcheck.NewService(healthcheck.ServiceConfig{
		Repository: healthcheck.NewPostgresRepository(pool),
		Routing:    routingService,
		Logger:     log,
	})

	verifyConfig := worker.DefaultVerifyConfig()
	if interval := os.Getenv("VERIFY_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			log.Fatal().Err(err).Str("value", interval).Msg("invalid VERIFY_INTERVAL")
		}
		verifyConfig.Interval = parsed
	}
	verifyJob := worker.NewVerifyJob(worker.VerifyJobConfig{
		Config: verifyConfig,
		Health: healthService,
		Logger: log,
	})

	// Subscribe to tour changes for incremental verification (optional)
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
		if subscription == "" {
			subscription = "tour-changes-worker"
		}
		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			VerifyJob:        verifyJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
		}
		defer pubsubHandler.Close()

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - incremental verification disabled")
	}

	// Create HTTP server for health checks
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

	// Start health check server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Periodic full-schedule verification
	go func() {
		verifyJob.Run(ctx)

		ticker := time.NewTicker(verifyConfig.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				verifyJob.Run(ctx)
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
