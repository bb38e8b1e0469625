package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/accounts/internal/app"
	"github.com/odyssey-erp/accounts/internal/observability"
	"github.com/odyssey-erp/accounts/internal/platform/cache"
	"github.com/odyssey-erp/accounts/internal/users"
	"github.com/odyssey-erp/accounts/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			// The record cache is optional; queued stamping is not.
			if cfg.QueueEnabled() {
				logger.Error("connect redis", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Warn("redis unavailable, user cache disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	deps := app.StoreDeps{Redis: redisClient, Observer: metrics}
	var inspector *asynq.Inspector
	if cfg.QueueEnabled() {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		deps.LoginRecorder = jobClient

		inspector = asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	store, err := app.OpenStore(ctx, cfg, logger, deps)
	if err != nil {
		logger.Error("open user store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()
	metrics.RegisterPoolStats(store.Stat)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Health:       store,
		UsersHandler: users.NewHandler(logger, store),
		JobHandler:   jobs.NewHandler(inspector, logger),
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
