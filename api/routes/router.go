package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unitpay/unitpay-gateway/api/controllers"
	"github.com/unitpay/unitpay-gateway/api/middleware"
	"github.com/unitpay/unitpay-gateway/internal/logrelay"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/pkg/auth"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
	"github.com/unitpay/unitpay-gateway/pkg/redis"
)

// RedisStore is the redis surface used by the idempotency and rate-limit middleware.
type RedisStore interface {
	redis.IdempotencyStore
	redis.RateLimiter
	redis.Pinger
}

// Deps carries every collaborator the API routes need. Nil services make the
// matching routes answer with INTERNAL_ERROR; a nil LogHub leaves /dev/logs unmounted.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics

	Intents   paymentintents.Service
	Tasks     tasks.Service
	Merchant  merchant.Service
	Verifier  controllers.ArgsVerifier
	Scheduler controllers.SettlementScheduler
	LogHub    *logrelay.Hub
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	var redisPinger controllers.Pinger
	if deps.Redis != nil {
		redisPinger = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": redisPinger,
		}, logg))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/payment/paypal/merchant-info/{paymentIntentId}", controllers.MerchantInfo(deps.Merchant, logg))

	verifyPolicy := middleware.NewRateLimitPolicy(
		"verify",
		cfg.Oracle.VerifyRateWindow,
		cfg.Oracle.VerifyRateIPLimit,
		cfg.Oracle.VerifyRateNodeLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/oracle", func(r chi.Router) {
			r.Use(middleware.TokenAuth(cfg.Oracle, auth.ScopeOracleVerify, logg))
			r.Use(middleware.RateLimit(verifyPolicy, deps.Redis, logg))
			r.Post("/verify", controllers.OracleVerify(deps.Verifier, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(cfg.Oracle, auth.ScopePaymentsManage, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Route("/payment-intents", func(r chi.Router) {
				r.Get("/", controllers.ListPaymentIntents(deps.Intents, logg))
				r.Post("/", controllers.CreatePaymentIntent(deps.Intents, logg))
				r.Get("/by-payment-id/{paymentId}", controllers.GetPaymentIntentByBlockchainID(deps.Intents, logg))
				r.Get("/{id}", controllers.GetPaymentIntent(deps.Intents, logg))
				r.Post("/{id}/transition", controllers.TransitionPaymentIntent(deps.Intents, logg))
				r.Post("/{id}/blockchain-payment-id", controllers.AttachBlockchainPaymentID(deps.Intents, logg))
				r.Post("/{id}/settle", controllers.SettlePaymentIntent(deps.Intents, deps.Scheduler, logg))
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", controllers.ListTasks(deps.Tasks, logg))
				r.Get("/{id}", controllers.GetTask(deps.Tasks, logg))
			})
		})
	})

	if (cfg.App.IsDev() || cfg.FeatureFlags.LogRelay) && deps.LogHub != nil {
		r.Get("/dev/logs", logrelay.Handler(deps.LogHub, logg, cfg.App.AllowedOrigins))
	}

	return r
}
