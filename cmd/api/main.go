package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/unitpay/unitpay-gateway/api/routes"
	"github.com/unitpay/unitpay-gateway/internal/logrelay"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/settlement"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/internal/verification"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/db"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
	"github.com/unitpay/unitpay-gateway/pkg/migrate"
	"github.com/unitpay/unitpay-gateway/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hub *logrelay.Hub
	var output io.Writer = os.Stdout
	if cfg.App.IsDev() || cfg.FeatureFlags.LogRelay {
		hub = logrelay.NewHub(0)
		hub.Start(ctx)
		defer hub.Close()
		output = io.MultiWriter(os.Stdout, logrelay.NewWriter(hub))
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      output,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	intentSvc, err := paymentintents.NewService(paymentintents.ServiceParams{
		Repo:   paymentintents.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment intent service", err)
		os.Exit(1)
	}

	taskSvc, err := tasks.NewService(tasks.ServiceParams{
		Repo:                       tasks.NewRepository(dbClient.DB()),
		Logger:                     logg,
		Metrics:                    metrics.NewTaskMetrics(registry),
		DefaultMaxRetries:          cfg.Tasks.DefaultMaxRetries,
		DefaultProcessingTimeoutMS: cfg.Tasks.DefaultProcessingTimeoutMS,
	})
	if err != nil {
		logg.Error(ctx, "failed to create task service", err)
		os.Exit(1)
	}

	merchantSvc, err := merchant.NewService(intentSvc)
	if err != nil {
		logg.Error(ctx, "failed to create merchant service", err)
		os.Exit(1)
	}

	verifier, err := verification.NewHandler(verification.AlwaysVerified{}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create verification handler", err)
		os.Exit(1)
	}

	scheduler, err := settlement.NewScheduler(taskSvc)
	if err != nil {
		logg.Error(ctx, "failed to create settlement scheduler", err)
		os.Exit(1)
	}

	if hub != nil {
		events, err := redisClient.Subscribe(ctx, logrelay.UIChannel)
		if err != nil {
			logg.Warn(ctx, "ui event subscription unavailable")
		} else {
			go logrelay.Forward(ctx, events, hub)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Gatherer:  registry,
			Metrics:   metrics.NewHTTPMetrics(registry),
			Intents:   intentSvc,
			Tasks:     taskSvc,
			Merchant:  merchantSvc,
			Verifier:  verifier,
			Scheduler: scheduler,
			LogHub:    hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "graceful shutdown failed", err)
	}
}
