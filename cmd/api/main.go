// Package main provides the entrypoint for the dispatch API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/api"
	"github.com/motis-project/prima-dispatch/internal/api/handler"
	"github.com/motis-project/prima-dispatch/internal/api/middleware"
	"github.com/motis-project/prima-dispatch/internal/auth"
	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/database"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/rideshare"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/routing/googlemaps"
	"github.com/motis-project/prima-dispatch/internal/routing/openrouteservice"
	"github.com/motis-project/prima-dispatch/internal/routing/resilience"
	"github.com/motis-project/prima-dispatch/internal/taxi"
	"github.com/motis-project/prima-dispatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "prima-dispatch-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting dispatch API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

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

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Redis caches routing durations (optional)
	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer redisClient.Close()
		log.Info().Str("addr", addr).Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_ADDR not set - routing durations are not cached")
	}

	// Initialize the routing provider. OpenRouteService is preferred; Google
	// Maps is the fallback.
	registry := resilience.NewRegistry()
	var routingProvider routing.Provider
	switch {
	case os.Getenv("ORS_API_KEY") != "":
		routingProvider = openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   os.Getenv("ORS_API_KEY"),
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: registry,
			Logger:   log,
		})
	case os.Getenv("GOOGLE_MAPS_API_KEY") != "":
		routingProvider, err = googlemaps.NewProvider(os.Getenv("GOOGLE_MAPS_API_KEY"), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Google Maps provider")
		}
	default:
		log.Fatal().Msg("no routing provider configured - set ORS_API_KEY or GOOGLE_MAPS_API_KEY")
	}
	log.Info().Str("provider", routingProvider.Name()).Msg("routing provider initialized")

	routingMetrics, err := routing.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize routing metrics")
	}

	// Taxi legs are capped at one hour of driving; ride share tours may be
	// much longer.
	taxiRouting := routing.NewService(routing.ServiceConfig{
		Provider: routingProvider,
		Logger:   log,
		Redis:    redisClient,
		Metrics:  routingMetrics,
	})
	rideShareRouting := routing.NewService(routing.ServiceConfig{
		Provider:    routingProvider,
		Logger:      log,
		Redis:       redisClient,
		MaxDuration: rideshare.MaxTourTime,
		Metrics:     routingMetrics,
	})

	// Initialize the connection signer
	bookingSigningKey := os.Getenv("BOOKING_SIGNING_KEY")
	if bookingSigningKey == "" {
		bookingSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default booking signing key - not secure for production")
	}
	signer := booking.NewSigner(booking.SignerConfig{
		SigningKey: bookingSigningKey,
		Issuer:     serviceName,
	})

	// Initialize JWT validation (tokens are issued by the account system)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
	})

	// Tour change notifications (optional)
	var notifier notify.Publisher
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topic := os.Getenv("PUBSUB_TOPIC")
		if topic == "" {
			topic = "tour-changes"
		}
		pubsubPublisher, err := notify.NewPubSubPublisher(ctx, notify.PubSubConfig{
			ProjectID: projectID,
			TopicName: topic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
		}
		defer pubsubPublisher.Close()
		notifier = pubsubPublisher
		log.Info().Str("topic", topic).Msg("pubsub publisher initialized")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - tour change notifications disabled")
	}

	// Initialize dispatch services
	availabilityService := availability.NewService(availability.ServiceConfig{
		Repository: availability.NewPostgresRepository(pool),
		Logger:     log,
	})
	taxiService := taxi.NewService(taxi.ServiceConfig{
		Availability: availabilityService,
		Routing:      taxiRouting,
		Repository:   taxi.NewPostgresRepository(pool),
		Signer:       signer,
		Notifier:     notifier,
		Logger:       log,
	})
	rideShareService := rideshare.NewService(rideshare.ServiceConfig{
		Repository: rideshare.NewPostgresRepository(pool),
		Routing:    rideShareRouting,
		Signer:     signer,
		Notifier:   notifier,
		Logger:     log,
	})
	healthService := healthcheck.NewService(healthcheck.ServiceConfig{
		Repository: healthcheck.NewPostgresRepository(pool),
		Routing:    taxiRouting,
		Logger:     log,
	})
	log.Info().Msg("dispatch services initialized")

	readinessChecks := []handler.ReadinessCheck{
		{Name: "postgres", Check: func(r *http.Request) error {
			return pool.Ping(r.Context())
		}},
	}
	if redisClient != nil {
		readinessChecks = append(readinessChecks, handler.ReadinessCheck{
			Name: "redis", Check: func(r *http.Request) error {
				return redisClient.Ping(r.Context()).Err()
			},
		})
	}
	if routingProvider.Name() == openrouteservice.ProviderName {
		probe := registry.Probe(openrouteservice.ProviderName)
		readinessChecks = append(readinessChecks, handler.ReadinessCheck{
			Name: "routing", Check: func(*http.Request) error {
				return probe()
			},
		})
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      serviceName,
		Metrics:          metrics,
		JWTService:       jwtService,
		TaxiService:      taxiService,
		RideShareService: rideShareService,
		HealthService:    healthService,
		ReadinessChecks:  readinessChecks,
		RequireTLS:       os.Getenv("REQUIRE_TLS") == "true",
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
