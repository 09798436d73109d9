package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leadflow_backend/internal/leadsync"
	"leadflow_backend/internal/leadsync/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/lock"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbConnectAttempts  = 5
	dbConnectBaseDelay = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Error("scheduler exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("scheduler stopped")
}

// run wires the lead sync module behind the periodic scheduler and the task
// worker, and blocks until SIGINT or SIGTERM.
func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting scheduler", "env", cfg.Env, "schedule", cfg.GetLeadSyncSchedule(), "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	err := withRetry(ctx, log, "database connection", dbConnectAttempts, dbConnectBaseDelay, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	locker, closeLocker, err := lock.New(cfg)
	if err != nil {
		return fmt.Errorf("init locker: %w", err)
	}
	defer func() { _ = closeLocker() }()

	module := leadsync.NewModule(repository.New(pool), locker, cfg, log)

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		return fmt.Errorf("init periodic scheduler: %w", err)
	}
	worker, err := scheduler.NewWorker(cfg, module.Orchestrator, module.Ingestor, log)
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		periodic.Run(ctx)
	}()

	worker.Run(ctx)
	stop()
	wg.Wait()
	return nil
}

// withRetry calls fn up to attempts times with quadratic backoff.
func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts %d", name, attempts)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "of", attempts, "error", lastErr.Error())

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt*attempt) * baseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", name, attempts, lastErr)
}
