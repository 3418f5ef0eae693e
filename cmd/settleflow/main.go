package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/settleflow/settleflow/internal/app"
	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/creditnotes"
	"github.com/settleflow/settleflow/internal/observability"
	"github.com/settleflow/settleflow/internal/paysessions"
	"github.com/settleflow/settleflow/internal/platform/cache"
	"github.com/settleflow/settleflow/internal/platform/db"
	"github.com/settleflow/settleflow/internal/schedules"
	"github.com/settleflow/settleflow/internal/shared"
	"github.com/settleflow/settleflow/internal/vendors"
	"github.com/settleflow/settleflow/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	vendorLock := shared.NewVendorLock(redisClient, cfg.VendorLockTTL)
	vendorGuard := vendors.NewGuard(vendors.NewRepository(dbpool))
	auditLogger := shared.NewAuditLogger(dbpool)

	billRepo := bills.NewRepository(dbpool)
	billService := bills.NewService(billRepo, auditLogger, logger)
	billHandler := bills.NewHandler(logger, billService)

	sessionRepo := paysessions.NewRepository(dbpool)
	sessionService := paysessions.NewService(sessionRepo, vendorGuard, vendorLock, auditLogger, logger)
	sessionHandler := paysessions.NewHandler(logger, sessionService)

	noteRepo := creditnotes.NewRepository(dbpool)
	noteService := creditnotes.NewService(noteRepo, auditLogger, logger)
	noteHandler := creditnotes.NewHandler(logger, noteService)

	scheduleRepo := schedules.NewRepository(dbpool)
	scheduleService := schedules.NewService(scheduleRepo, sessionService, auditLogger, logger)
	scheduleHandler := schedules.NewHandler(logger, scheduleService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		BillsHandler:       billHandler,
		SessionsHandler:    sessionHandler,
		CreditNotesHandler: noteHandler,
		SchedulesHandler:   scheduleHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
