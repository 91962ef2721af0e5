package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/unitpay/unitpay-gateway/internal/listener"
	"github.com/unitpay/unitpay-gateway/internal/logrelay"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/settlement"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/internal/verification"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/db"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
	"github.com/unitpay/unitpay-gateway/pkg/redis"
)

// chainPinger reports RPC reachability through eth_chainId.
type chainPinger struct {
	client *ethclient.Client
}

func (c chainPinger) Ping(ctx context.Context) error {
	_, err := c.client.ChainID(ctx)
	return err
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	taskMetrics := metrics.NewTaskMetrics(prometheus.DefaultRegisterer)

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
		Metrics:                    taskMetrics,
		DefaultMaxRetries:          cfg.Tasks.DefaultMaxRetries,
		DefaultProcessingTimeoutMS: cfg.Tasks.DefaultProcessingTimeoutMS,
	})
	if err != nil {
		logg.Error(ctx, "failed to create task service", err)
		os.Exit(1)
	}

	uiEvents, err := logrelay.NewUIEvents(redisClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create ui event publisher", err)
		os.Exit(1)
	}

	merchantClient, err := merchant.NewClient(cfg.Merchant.APIBaseURL,
		merchant.WithHTTPClient(&http.Client{Timeout: cfg.Merchant.Timeout}),
		merchant.WithRetry(cfg.Merchant.MaxRetries, cfg.Merchant.RetryBase),
	)
	if err != nil {
		logg.Error(ctx, "failed to create merchant client", err)
		os.Exit(1)
	}
	resolver, err := merchant.NewResolver(merchantClient, uiEvents, logg)
	if err != nil {
		logg.Error(ctx, "failed to create merchant resolver", err)
		os.Exit(1)
	}

	verifier, err := verification.NewHandler(verification.AlwaysVerified{}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create verification handler", err)
		os.Exit(1)
	}

	fulfiller, err := settlement.NewHTTPFulfiller(cfg.Oracle.CallbackURL, "", cfg.Oracle.CallbackTimeout())
	if err != nil {
		logg.Error(ctx, "failed to create oracle fulfiller", err)
		os.Exit(1)
	}

	var (
		ethClient *ethclient.Client
		chain     pinger
		head      settlement.HeadReader
	)
	if cfg.Chain.Enabled() {
		ethClient, err = ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			logg.Error(ctx, "failed to dial chain rpc", err)
			os.Exit(1)
		}
		defer ethClient.Close()
		chain = chainPinger{client: ethClient}
		head = ethClient
	}

	bridge, err := settlement.NewBridge(settlement.BridgeParams{
		Intents:   intentSvc,
		Merchant:  resolver,
		Verifier:  verifier,
		Fulfiller: fulfiller,
		Logger:    logg,
		Head:      head,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement bridge", err)
		os.Exit(1)
	}

	scheduler, err := settlement.NewScheduler(taskSvc)
	if err != nil {
		logg.Error(ctx, "failed to create settlement scheduler", err)
		os.Exit(1)
	}

	processor, err := tasks.NewProcessor(tasks.ProcessorParams{
		Service:      taskSvc,
		Logger:       logg,
		Metrics:      taskMetrics,
		PollInterval: cfg.Tasks.PollInterval(),
		Observer:     uiEvents,
	})
	if err != nil {
		logg.Error(ctx, "failed to create task processor", err)
		os.Exit(1)
	}
	processor.Register(enums.TaskTypePaymentSettlement, settlement.NewTaskHandler(bridge, scheduler))

	if ethClient != nil {
		eventListener, err := listener.NewListener(ethClient, cfg.Chain.ContractAddress, logg)
		if err != nil {
			logg.Error(ctx, "failed to create confirmation listener", err)
			os.Exit(1)
		}
		confirmer, err := listener.NewConfirmer(listener.ConfirmerParams{
			Awaiter:  eventListener,
			Intents:  intentSvc,
			Notifier: uiEvents,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(ctx, "failed to create confirmer", err)
			os.Exit(1)
		}
		processor.Register(enums.TaskTypePaymentConfirmation, confirmer.TaskHandler())
	} else {
		logg.Warn(ctx, "chain rpc not configured; confirmation tasks will not be processed")
	}

	svc, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Chain:     chain,
		Processor: processor,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "starting worker")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker exited", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
