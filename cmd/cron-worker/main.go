package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unitpay/unitpay-gateway/internal/cron"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/settlement"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/db"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
	"github.com/unitpay/unitpay-gateway/pkg/migrate"
	"github.com/unitpay/unitpay-gateway/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	intentSvc, err := paymentintents.NewService(paymentintents.ServiceParams{
		Repo:   paymentintents.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment intent service", err)
		os.Exit(1)
	}

	taskSvc, err := tasks.NewService(tasks.ServiceParams{
		Repo:                       tasks.NewRepository(dbClient.DB()),
		Logger:                     logg,
		Metrics:                    metrics.NewTaskMetrics(prometheus.DefaultRegisterer),
		DefaultMaxRetries:          cfg.Tasks.DefaultMaxRetries,
		DefaultProcessingTimeoutMS: cfg.Tasks.DefaultProcessingTimeoutMS,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create task service", err)
		os.Exit(1)
	}

	scheduler, err := settlement.NewScheduler(taskSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement scheduler", err)
		os.Exit(1)
	}

	timeoutJob, err := cron.NewTaskTimeoutJob(logg, taskSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create task timeout job", err)
		os.Exit(1)
	}
	staleJob, err := cron.NewStaleIntentJob(cron.StaleIntentJobParams{
		Logger:      logg,
		Intents:     intentSvc,
		Tasks:       taskSvc,
		Scheduler:   scheduler,
		MaxAge:      cfg.Cron.StaleIntentAge,
		MaxAttempts: cfg.Cron.MaxSettlementAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale intent job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(timeoutJob, staleJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
