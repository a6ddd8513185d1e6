package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/solera-erp/solera-erp/internal/app"
	"github.com/solera-erp/solera-erp/internal/billing"
	"github.com/solera-erp/solera-erp/internal/masterdata"
	"github.com/solera-erp/solera-erp/internal/platform/cache"
	"github.com/solera-erp/solera-erp/internal/platform/db"
	"github.com/solera-erp/solera-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	masterRepo := masterdata.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, masterRepo, logger)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	billingService = billingService.WithSummaryCache(billing.NewSummaryCache(redisClient, cfg.SummaryCacheTTL))

	sweep := jobs.NewOverdueSweepJob(billingService, logger)
	reminder := jobs.NewGuaranteeReminderJob(billingService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOverdueSweep, Handler: sweep.Handle},
			{Type: jobs.TaskTypeGuaranteeReminder, Handler: reminder.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepSpec, Task: jobs.NewOverdueSweepTask()},
			{Spec: cfg.GuaranteeReminderSpec, Task: jobs.NewGuaranteeReminderTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
