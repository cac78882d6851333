// Package main is the entrypoint for the maintenance runner.
//
// The runner executes the housekeeping sweeps: expired content-cache entries
// are deleted in bounded batches, bulk jobs stuck in processing past the
// stale threshold are declared failed, and dead sessions are removed.
//
// In production it runs under AWS Lambda on an EventBridge schedule; each
// invocation performs one full run. In local mode it runs as a daemon driven
// by a cron schedule from configuration, stopping cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/robfig/cron/v3"

	"pathsynch/internal/cache"
	"pathsynch/internal/config"
	"pathsynch/internal/db"
	"pathsynch/internal/maintenance"
	"pathsynch/internal/metrics"
)

// runTimeout bounds one maintenance run. Generous next to the sweep batch
// sizes, but a wedged database must not pin the daemon forever.
const runTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("maintenance runner initializing")

	ctx := context.Background()

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	var counter maintenance.Counter
	if cfg.Metrics.EnableMetrics {
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if awsErr != nil {
			return fmt.Errorf("loading AWS configuration: %w", awsErr)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		counter = metrics.NewCloudWatchCollector(cwClient, logger)
	}

	cacheRepo := db.NewCacheRepository(pool)
	svc := maintenance.NewService(maintenance.ServiceConfig{
		Cache:    cache.NewContentCache(cacheRepo, logger),
		Jobs:     db.NewBulkJobRepository(pool),
		Sessions: db.NewSessionRepository(pool),
		Metrics:  counter,
		Tuning:   cfg.Maintenance,
		Logger:   logger,
	})

	if isLambdaEnvironment() {
		logger.Info("starting in Lambda mode")
		lambda.Start(func(ctx context.Context) error {
			return runOnce(ctx, svc, logger)
		})
		return nil
	}

	return runDaemon(svc, cfg.Maintenance.Schedule, logger)
}

// runOnce performs one full maintenance run under a deadline.
func runOnce(ctx context.Context, svc *maintenance.Service, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	result, err := svc.Run(ctx, start)
	logger.InfoContext(ctx, "maintenance run finished",
		"cache_entries_swept", result.CacheEntriesSwept,
		"jobs_abandoned", result.JobsAbandoned,
		"sessions_deleted", result.SessionsDeleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

// runDaemon drives the service from a cron schedule until a shutdown signal.
func runDaemon(svc *maintenance.Service, schedule string, logger *slog.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if runErr := runOnce(context.Background(), svc, logger); runErr != nil {
			logger.Error("maintenance run failed", "error", runErr)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	logger.Info("maintenance daemon started", "schedule", schedule)
	c.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig.String())

	// Stop scheduling new runs, then wait for an in-flight run to finish.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(runTimeout):
		logger.Warn("timed out waiting for in-flight maintenance run")
	}

	logger.Info("maintenance daemon stopped")
	return nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}
