package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solera-erp/solera-erp/internal/app"
	"github.com/solera-erp/solera-erp/internal/billing"
	"github.com/solera-erp/solera-erp/internal/closings"
	"github.com/solera-erp/solera-erp/internal/masterdata"
	"github.com/solera-erp/solera-erp/internal/platform/cache"
	"github.com/solera-erp/solera-erp/internal/platform/db"
	"github.com/solera-erp/solera-erp/migrations"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(migrations.Files, cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary served uncached", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	masterRepo := masterdata.NewRepository(pool)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, masterRepo, logger)
	if redisClient != nil {
		billingService = billingService.WithSummaryCache(billing.NewSummaryCache(redisClient, cfg.SummaryCacheTTL))
	}
	billingHandler := billing.NewHandler(billingService, logger)

	closingsRepo := closings.NewRepository(pool)
	closingsService := closings.NewService(closingsRepo, masterRepo, billingService, logger)
	closingsHandler := closings.NewHandler(closingsService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		BillingHandler:  billingHandler,
		ClosingsHandler: closingsHandler,
		Pool:            pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
