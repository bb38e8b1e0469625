package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/accounts/internal/app"
	"github.com/odyssey-erp/accounts/internal/observability"
	"github.com/odyssey-erp/accounts/internal/platform/cache"
	"github.com/odyssey-erp/accounts/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWorker(ctx, cfg, logger); err != nil {
		logger.Error("login stamp worker stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// runWorker consumes login stamp tasks until ctx is cancelled.
func runWorker(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.RedisAddr == "" {
		return errors.New("worker requires REDIS_ADDR")
	}

	// Stamps must invalidate the records the API caches.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	metrics := observability.NewMetrics()
	store, err := app.OpenStore(ctx, cfg, logger, app.StoreDeps{Redis: redisClient, Observer: metrics})
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer store.Close()

	stamp := jobs.NewStampLastLoginJob(store, logger, metrics.Jobs())
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger.With(slog.String("component", "worker")),
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskStampLastLogin, Handler: stamp.Handle}},
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	logger.Info("login stamp worker started", slog.String("queue", jobs.QueueDefault))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
