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

	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/app"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/cache"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping ledgerd startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, os.Stdout)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ledgerd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrationsEnabled {
		changed, err := db.Migrate(cfg.PGDSN)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", slog.Bool("changed", changed))
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLife})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	services, err := app.BuildServices(ctx, app.ServiceParams{
		Config:  cfg,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	guard := jobs.NewGuard(redislock.New(redisClient), cfg.JobLockTTL, jobMetrics, logger)
	recurringJob := jobs.NewRecurringJob(services.Orchestrator, guard, logger, jobMetrics)
	reconcileJob := jobs.NewStockReconcileJob(services.Inventory, guard, logger, jobMetrics)
	integrityJob := jobs.NewIntegrityJob(services.Journal, guard, logger, jobMetrics)

	recurringTask, err := jobs.NewRecurringTask(time.Time{})
	if err != nil {
		return err
	}
	reconcileTask, err := jobs.NewStockReconcileTask(time.Time{})
	if err != nil {
		return err
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Time{})
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringGenerate, Handler: recurringJob.Handle},
			{Type: jobs.TaskStockReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: recurringTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Checks: []app.HealthCheck{
			{Name: "postgres", Ping: pool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		Journal:    services.Journal,
		Stock:      services.Inventory,
		Statements: services.Accounts,
		Sequences:  services.Sequences,
		JobRoutes:  func(r chi.Router) { jobHandler.MountRoutes(r) },
	})
	server := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
