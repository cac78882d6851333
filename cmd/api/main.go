// Package main is the entry point for the PathSynch API server.
//
// It loads configuration, opens the database pool, wires the repositories,
// auth service, usage gate, external provider clients, and caches into the
// core chassis, and starts serving.
//
// In local mode (APP_ENV=local) it runs as a standard HTTP server on the
// configured port. Inside AWS Lambda it bridges API Gateway events onto the
// same chi router. Graceful shutdown is handled via OS signal interception
// (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"pathsynch/internal/api/handlers"
	"pathsynch/internal/auth"
	"pathsynch/internal/billing"
	"pathsynch/internal/cache"
	"pathsynch/internal/config"
	"pathsynch/internal/core"
	"pathsynch/internal/db"
	"pathsynch/internal/external"
	"pathsynch/internal/metrics"
	"pathsynch/internal/pitch"
	"pathsynch/internal/queue"
	"pathsynch/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	// Load configuration. For local development, pass nil as the SecretProvider
	// since SSM resolution is bypassed when APP_ENV=local.
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("pathsynch API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	// Repositories.
	userRepo := db.NewUserRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	usageRepo := db.NewUsageRepository(pool)
	subscriptionRepo := db.NewSubscriptionRepository(pool)
	billingEventRepo := db.NewBillingEventRepository(pool)
	cacheRepo := db.NewCacheRepository(pool)
	pitchRepo := db.NewPitchRepository(pool)
	narrativeRepo := db.NewNarrativeRepository(pool)
	bulkJobRepo := db.NewBulkJobRepository(pool)
	analyticsRepo := db.NewAnalyticsRepository(pool)

	// Domain services.
	authService := auth.NewService(auth.ServiceConfig{
		Users:      userRepo,
		Sessions:   sessionRepo,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
	})
	plans := billing.NewStaticPlanRegistry()
	gate := billing.NewGate(userRepo, usageRepo, plans, logger)
	contentCache := cache.NewContentCache(cacheRepo, logger)

	// External provider clients. Each carries its own HTTP timeout: AI
	// generation routinely takes tens of seconds while the data providers
	// are expected to answer quickly.
	textGen := external.NewTextGenClient(
		&http.Client{Timeout: cfg.AI.Timeout},
		external.TextGenClientConfigFromApp(cfg.AI, logger),
	)
	placesClient := external.NewPlacesClient(
		&http.Client{Timeout: cfg.Places.Timeout},
		external.PlacesClientConfigFromApp(cfg.Places, logger),
	)
	secClient := external.NewSECClient(
		&http.Client{Timeout: cfg.SEC.Timeout},
		external.SECClientConfigFromApp(cfg.SEC, logger),
	)
	logoClient := external.NewLogoClient(
		&http.Client{Timeout: cfg.Logo.Timeout},
		external.LogoClientConfigFromApp(cfg.Logo, logger),
	)
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		userRepo,
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			PlanToPrice: map[types.PlanTier]string{
				types.PlanGrowth:     cfg.Billing.PriceGrowth,
				types.PlanScale:      cfg.Billing.PriceScale,
				types.PlanEnterprise: cfg.Billing.PriceEnterprise,
			},
			Logger: logger,
		},
	)

	symbolCache := cache.NewSymbolCache(secClient, 0, 0, logger)
	narrativeGen := pitch.NewNarrativeGenerator(
		textGen, contentCache, cfg.AI.Model, cfg.AI.CostPerThousandTokensCents, logger,
	)
	eventProcessor := billing.NewEventProcessor(
		userRepo, subscriptionRepo, billingEventRepo, cfg.Billing.PriceToPlan(), logger,
	)

	// AWS clients. The endpoint override points both at LocalStack during
	// local development.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	dispatcher := queue.NewJobDispatcher(sqsClient, cfg.AWS, logger)

	var collector core.MetricsCollector
	if cfg.Metrics.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		collector = metrics.NewCloudWatchCollector(cwClient, logger)
	}

	// Chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authService
	srv.Metrics = collector
	srv.HealthProbes = []core.HealthProbe{db.PoolProbe{Pool: pool}}

	// Handlers. The kill switches drop whole route groups: a disabled
	// capability 404s instead of failing halfway through.
	authHandler := handlers.NewAuthHandler(authService, srv.Validator, logger)
	pitchHandler := handlers.NewPitchHandler(pitchRepo, narrativeRepo, gate, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(subscriptionRepo, stripeClient, gate, plans, srv.Validator, logger)
	webhookHandler := handlers.NewWebhookHandler(eventProcessor, &external.StripeVerifier{}, cfg.Billing.StripeWebhookSecret.Unmask(), logger)
	adminHandler := handlers.NewAdminHandler(analyticsRepo, userRepo, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		pitchHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireAdmin)
				adminHandler.RegisterRoutes(r)
			})
		},
	)

	if cfg.Feature.EnableAI {
		narrativeHandler := handlers.NewNarrativeHandler(narrativeRepo, narrativeGen, gate, srv.Validator, logger)
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, narrativeHandler.RegisterRoutes)
	} else {
		logger.Warn("AI narrative endpoints disabled by feature flag")
	}

	if cfg.Feature.EnableBulk {
		bulkHandler := handlers.NewBulkHandler(bulkJobRepo, pitchRepo, dispatcher, gate, plans, logger)
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, bulkHandler.RegisterRoutes)
	} else {
		logger.Warn("bulk upload endpoints disabled by feature flag")
	}

	if cfg.Feature.EnableMarketData {
		marketHandler := handlers.NewMarketHandler(placesClient, secClient, logoClient, symbolCache, contentCache, gate, logger)
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, marketHandler.RegisterRoutes)
	} else {
		logger.Warn("market data endpoints disabled by feature flag")
	}

	srv.OnShutdown(func(_ context.Context) error {
		contentCache.Drain()
		pool.Close()
		return nil
	})

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
