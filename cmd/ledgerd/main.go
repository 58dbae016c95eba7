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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/parishbooks/parishbooks/internal/app"
	"github.com/parishbooks/parishbooks/internal/ledger/books"
	"github.com/parishbooks/parishbooks/internal/ledger/closing"
	"github.com/parishbooks/parishbooks/internal/ledger/journal"
	"github.com/parishbooks/parishbooks/internal/ledger/periods"
	"github.com/parishbooks/parishbooks/internal/platform/cache"
	"github.com/parishbooks/parishbooks/internal/platform/db"
	"github.com/parishbooks/parishbooks/internal/shared"
	"github.com/parishbooks/parishbooks/jobs"
)

func main() {
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

	audit := shared.NewAuditLogger(pool, logger)

	periodService := periods.NewService(periods.NewRepository(pool), audit)
	journalService := journal.NewService(journal.NewRepository(pool), periodService, audit, cfg.DefaultCurrency)
	closingService := closing.NewService(journalService, periodService, closing.NewPgRepository(pool), closing.NewAdvisoryLocker(pool), audit)
	booksService := books.NewService(books.NewPgRepository(pool))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypePeriodClose, Handler: jobs.NewPeriodCloseHandler(closingService, logger)},
			{Type: jobs.TaskTypeGLIntegrity, Handler: jobs.NewGLIntegrityHandler(pool, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	router := chi.NewRouter()
	router.Use(middleware.Timeout(cfg.AppRequestTimeout))
	jobs.NewHandler(inspector, logger).MountRoutes(router)
	books.NewHandler(booksService, logger).MountRoutes(router)
	healthSrv := &http.Server{
		Addr:              cfg.WorkerAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("health endpoint listening", slog.String("addr", cfg.WorkerAddr))
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthSrv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ledgerd run", slog.Any("error", err))
		os.Exit(1)
	}
}
