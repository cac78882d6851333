// Package main implements the job-runner CLI tool for invoking maintenance
// sweeps directly, bypassing the AWS Lambda shim and the cron daemon.
//
// This tool is intended for local development, manual backfilling, and
// operational debugging. It wires the maintenance service against the
// database and runs the requested sweep once.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=sweep_cache
//	go run ./cmd/tools/job-runner --task=reap_stale_jobs --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=all
//	go run ./cmd/tools/job-runner --list
//
// The tool reads DATABASE_URL from environment variables (or a .env file via
// godotenv). In --dry-run mode, it prints the constructed JSON payload
// without executing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pathsynch/internal/cache"
	"pathsynch/internal/config"
	"pathsynch/internal/db"
	"pathsynch/internal/maintenance"
)

// taskType identifies a maintenance sweep the runner can execute.
type taskType string

const (
	taskSweepCache    taskType = "sweep_cache"
	taskReapStaleJobs taskType = "reap_stale_jobs"
	taskSweepSessions taskType = "sweep_sessions"
	taskAll           taskType = "all"
)

// validTasks is the exhaustive set of task values the runner supports,
// maintained in sync with the sweep methods on maintenance.Service.
var validTasks = map[taskType]string{
	taskSweepCache:    "Delete expired content-cache entries in bounded batches",
	taskReapStaleJobs: "Declare bulk jobs stuck in processing past the stale threshold failed",
	taskSweepSessions: "Delete sessions past their expiry",
	taskAll:           "Run all three sweeps in sequence",
}

// runTimeout bounds one manual run, matching the scheduled runner.
const runTimeout = 5 * time.Minute

// runPayload is the JSON document printed in --dry-run mode. Its shape
// matches what an operator would log or attach to an incident ticket.
type runPayload struct {
	Task          taskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

func main() {
	taskFlag := flag.String("task", "", "Sweep to execute (e.g., sweep_cache)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available tasks and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke maintenance sweeps directly, bypassing Lambda and cron.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available tasks.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *taskFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --task is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	task := taskType(*taskFlag)
	if _, ok := validTasks[task]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown task %q\n\n", *taskFlag)
		printAvailableTasks()
		os.Exit(1)
	}

	var refTime *time.Time
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --reference-time %q: %v\n", *refTimeFlag, err)
			fmt.Fprintf(os.Stderr, "  expected RFC3339 format, e.g., 2026-01-15T02:00:00Z\n")
			os.Exit(1)
		}
		refTime = &t
	}

	payload := runPayload{Task: task, ReferenceTime: refTime}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *dryRunFlag {
		printPayload(payload)
		return
	}

	// Load .env file for local development (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload, logger)
	if err != nil {
		logger.Error("task execution failed",
			"task", string(payload.Task),
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("task execution succeeded",
		"task", string(payload.Task),
		"result", result,
	)
}

// executeTask wires the database and the maintenance service, then invokes
// the requested sweep directly.
func executeTask(ctx context.Context, payload runPayload, logger *slog.Logger) (string, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL environment variable is required")
	}

	// Pool tuning stays at the defaults used by the scheduled runner; the
	// CLI only needs a couple of connections.
	dbCfg := config.DatabaseConfig{
		URL:               config.SecretString(databaseURL),
		MaxConns:          4,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		AcquireTimeout:    2 * time.Second,
		HealthCheckPeriod: time.Minute,
	}

	pool, err := db.NewPool(ctx, dbCfg)
	if err != nil {
		return "", fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	logger.Info("database connection established")

	cacheRepo := db.NewCacheRepository(pool)
	svc := maintenance.NewService(maintenance.ServiceConfig{
		Cache:    cache.NewContentCache(cacheRepo, logger),
		Jobs:     db.NewBulkJobRepository(pool),
		Sessions: db.NewSessionRepository(pool),
		Tuning:   config.MaintenanceConfig{},
		Logger:   logger,
	})

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.Info("executing task",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
	)

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	return dispatch(ctx, payload.Task, now, svc)
}

// dispatch routes a taskType to the appropriate sweep on the service.
func dispatch(ctx context.Context, task taskType, now time.Time, svc *maintenance.Service) (string, error) {
	switch task {
	case taskSweepCache:
		swept, err := svc.SweepCache(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cache sweep complete: %d entries removed", swept), nil

	case taskReapStaleJobs:
		abandoned, err := svc.ReapStaleJobs(ctx, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("stale job reap complete: %d jobs abandoned", abandoned), nil

	case taskSweepSessions:
		deleted, err := svc.SweepSessions(ctx, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("session sweep complete: %d sessions deleted", deleted), nil

	case taskAll:
		result, err := svc.Run(ctx, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("full run complete: %d cache entries, %d jobs, %d sessions",
			result.CacheEntriesSwept, result.JobsAbandoned, result.SessionsDeleted), nil

	default:
		// Unknown tasks are caught at flag validation before reaching here.
		return "", fmt.Errorf("task %q cannot be dispatched", task)
	}
}

// printAvailableTasks prints all valid tasks and their descriptions to
// stderr, sorted alphabetically by task name.
func printAvailableTasks() {
	fmt.Fprintf(os.Stderr, "Available tasks:\n\n")

	tasks := make([]taskType, 0, len(validTasks))
	for t := range validTasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}

	for _, t := range tasks {
		fmt.Fprintf(os.Stderr, "  %-*s  %s\n", maxLen, string(t), validTasks[t])
	}
	fmt.Fprintln(os.Stderr)
}

// printPayload marshals the runPayload to pretty-printed JSON and writes it
// to stdout for inspection or piping.
func printPayload(payload runPayload) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to marshal payload: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))

	if desc, ok := validTasks[payload.Task]; ok {
		fmt.Fprintf(os.Stderr, "\nTask: %s\nDescription: %s\n", payload.Task, desc)
		if payload.ReferenceTime != nil {
			fmt.Fprintf(os.Stderr, "Reference time: %s\n", payload.ReferenceTime.Format(time.RFC3339))
		} else {
			fmt.Fprintf(os.Stderr, "Reference time: (current UTC time will be used)\n")
		}
	}
}
