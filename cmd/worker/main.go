package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/settleflow/settleflow/internal/app"
	"github.com/settleflow/settleflow/internal/bills"
	jobmetrics "github.com/settleflow/settleflow/internal/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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
	vendorGuard := vendors.NewGuard(vendors.NewRepository(pool))

	auditLogger := shared.NewAuditLogger(pool)
	billService := bills.NewService(bills.NewRepository(pool), auditLogger, logger)
	sessionService := paysessions.NewService(paysessions.NewRepository(pool), vendorGuard, vendorLock, auditLogger, logger)
	scheduleService := schedules.NewService(schedules.NewRepository(pool), sessionService, auditLogger, logger)

	metrics := jobmetrics.NewMetrics(nil)
	deps := jobs.SweepDeps{
		Pool:      pool,
		Bills:     billService,
		Schedules: scheduleService,
		Metrics:   metrics,
		Logger:    logger,
	}

	overdueTask, err := jobs.NewOverdueRefreshTask(jobs.SweepPayload{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	scheduleTask, err := jobs.NewScheduleSweepTask(jobs.SweepPayload{})
	if err != nil {
		logger.Error("build schedule task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueRefresh, Handler: jobs.NewOverdueRefreshHandler(deps)},
			{Type: jobs.TaskScheduleSweep, Handler: jobs.NewScheduleSweepHandler(deps)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: scheduleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
