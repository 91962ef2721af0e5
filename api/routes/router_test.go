package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/unitpay/unitpay-gateway/internal/logrelay"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/settlement"
	"github.com/unitpay/unitpay-gateway/internal/tasks"
	"github.com/unitpay/unitpay-gateway/internal/verification"
	"github.com/unitpay/unitpay-gateway/pkg/auth"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/metrics"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	return true, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:idem:%s:%s", scope, id)
}

func (f *fakeRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func (f *fakeRedis) Ping(context.Context) error { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env, AllowedOrigins: []string{"http://localhost:3000"}},
		Oracle: config.OracleConfig{
			JWTSecret:           "secret",
			JWTIssuer:           "unitpay",
			TokenTTLMinutes:     10,
			VerifyRateWindow:    time.Minute,
			VerifyRateNodeLimit: 2,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, hub *logrelay.Hub) http.Handler {
	t.Helper()
	conn := newTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	intentSvc, err := paymentintents.NewService(paymentintents.ServiceParams{Repo: paymentintents.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	taskSvc, err := tasks.NewService(tasks.ServiceParams{Repo: tasks.NewRepository(conn), Logger: logg, DefaultMaxRetries: 3})
	require.NoError(t, err)
	merchantSvc, err := merchant.NewService(intentSvc)
	require.NoError(t, err)
	handler, err := verification.NewHandler(verification.AlwaysVerified{}, logg)
	require.NoError(t, err)
	scheduler, err := settlement.NewScheduler(taskSvc)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:    cfg,
		Logger:    logg,
		Redis:     newFakeRedis(),
		Gatherer:  reg,
		Metrics:   metrics.NewHTTPMetrics(reg),
		Intents:   intentSvc,
		Tasks:     taskSvc,
		Merchant:  merchantSvc,
		Verifier:  handler,
		Scheduler: scheduler,
		LogHub:    hub,
	})
}

func mintToken(t *testing.T, cfg *config.Config, scope string) string {
	t.Helper()
	token, err := auth.MintOracleToken(cfg.Oracle, time.Now(), auth.OracleTokenPayload{NodeID: "node-1", Scopes: []string{scope}})
	require.NoError(t, err)
	return token
}

func serve(router http.Handler, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	cfg := testConfig("prod")
	router := newTestRouter(t, cfg, nil)

	rec := serve(router, http.MethodGet, "/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = serve(router, http.MethodGet, "/health/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unitpay_http_requests_total")
}

func TestMerchantInfoIsPublic(t *testing.T) {
	cfg := testConfig("prod")
	router := newTestRouter(t, cfg, nil)

	rec := serve(router, http.MethodGet, "/payment/paypal/merchant-info/6f1c2b1e-4a3d-4c5e-9f00-0123456789ab", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"not found"}`, rec.Body.String())
}

func TestOracleVerifyRequiresScopedToken(t *testing.T) {
	cfg := testConfig("prod")
	router := newTestRouter(t, cfg, nil)
	body := `{"args":["ORD1","m@x.com","100","lp@x.com"]}`

	rec := serve(router, http.MethodPost, "/api/v1/oracle/verify", "", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/oracle/verify", mintToken(t, cfg, auth.ScopePaymentsManage), body, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/oracle/verify", mintToken(t, cfg, auth.ScopeOracleVerify), body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var envelope struct {
		Data struct {
			Result   string `json:"result"`
			Verified bool   `json:"verified"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Verified)
	assert.Len(t, envelope.Data.Result, 66)
}

func TestOracleVerifyIsRateLimitedPerNode(t *testing.T) {
	cfg := testConfig("prod")
	router := newTestRouter(t, cfg, nil)
	token := mintToken(t, cfg, auth.ScopeOracleVerify)
	body := `{"args":["ORD1","m@x.com","100","lp@x.com"]}`

	for i := 0; i < 2; i++ {
		rec := serve(router, http.MethodPost, "/api/v1/oracle/verify", token, body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(router, http.MethodPost, "/api/v1/oracle/verify", token, body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCreatePaymentIntentIsIdempotent(t *testing.T) {
	cfg := testConfig("prod")
	router := newTestRouter(t, cfg, nil)
	token := mintToken(t, cfg, auth.ScopePaymentsManage)
	body := `{"order_id":"ORD1","amount":"100","merchant_email":"m@x.com","counterparty_email":"lp@x.com"}`

	rec := serve(router, http.MethodPost, "/api/v1/payment-intents", token, body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing Idempotency-Key")

	headers := map[string]string{"Idempotency-Key": "create-1"}
	first := serve(router, http.MethodPost, "/api/v1/payment-intents", token, body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := serve(router, http.MethodPost, "/api/v1/payment-intents", token, body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	rec = serve(router, http.MethodGet, "/api/v1/payment-intents", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Meta.Count)

	rec = serve(router, http.MethodGet, "/api/v1/tasks", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDevLogsMountedOnlyInDev(t *testing.T) {
	hub := logrelay.NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub.Start(ctx)

	prod := newTestRouter(t, testConfig("prod"), hub)
	rec := serve(prod, http.MethodGet, "/dev/logs", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dev := newTestRouter(t, testConfig("dev"), hub)
	rec = serve(dev, http.MethodGet, "/dev/logs", "", "", nil)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
