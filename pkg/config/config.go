package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Oracle       OracleConfig
	Merchant     MerchantConfig
	Chain        ChainConfig
	Tasks        TasksConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"UNITPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"UNITPAY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"UNITPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"UNITPAY_LOG_WARN_STACK" default:"false"`
	// AllowedOrigins feeds the CORS policy for the task pool UI.
	AllowedOrigins []string `envconfig:"UNITPAY_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"UNITPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"UNITPAY_DB_DSN"`
	Driver string `envconfig:"UNITPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"UNITPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"UNITPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"UNITPAY_DB_USER"`
	LegacyPassword string `envconfig:"UNITPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"UNITPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"UNITPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"UNITPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"UNITPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"UNITPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"UNITPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"UNITPAY_REDIS_URL"`
	Address      string        `envconfig:"UNITPAY_REDIS_ADDR"`
	Password     string        `envconfig:"UNITPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"UNITPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"UNITPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"UNITPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"UNITPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"UNITPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"UNITPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// OracleConfig covers the shared secret used by oracle nodes calling the
// verification endpoint and the callback the bridge fulfills into.
type OracleConfig struct {
	JWTSecret         string `envconfig:"UNITPAY_ORACLE_JWT_SECRET" required:"true"`
	JWTIssuer         string `envconfig:"UNITPAY_ORACLE_JWT_ISSUER" default:"unitpay"`
	TokenTTLMinutes   int    `envconfig:"UNITPAY_ORACLE_TOKEN_TTL_MINUTES" default:"60"`
	CallbackURL       string `envconfig:"UNITPAY_ORACLE_CALLBACK_URL"`
	CallbackTimeoutMS int    `envconfig:"UNITPAY_ORACLE_CALLBACK_TIMEOUT_MS" default:"10000"`

	VerifyRateWindow    time.Duration `envconfig:"UNITPAY_ORACLE_VERIFY_RATE_WINDOW" default:"1m"`
	VerifyRateIPLimit   int           `envconfig:"UNITPAY_ORACLE_VERIFY_RATE_IP_LIMIT" default:"120"`
	VerifyRateNodeLimit int           `envconfig:"UNITPAY_ORACLE_VERIFY_RATE_NODE_LIMIT" default:"60"`
}

// TokenTTL returns the oracle token TTL configured in minutes.
func (o OracleConfig) TokenTTL() time.Duration {
	if o.TokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(o.TokenTTLMinutes) * time.Minute
}

// CallbackTimeout returns the HTTP timeout used when fulfilling oracle requests.
func (o OracleConfig) CallbackTimeout() time.Duration {
	return time.Duration(o.CallbackTimeoutMS) * time.Millisecond
}

type MerchantConfig struct {
	APIBaseURL string        `envconfig:"UNITPAY_API_BASE_URL" required:"true"`
	Timeout    time.Duration `envconfig:"UNITPAY_MERCHANT_TIMEOUT" default:"10s"`
	MaxRetries uint64        `envconfig:"UNITPAY_MERCHANT_MAX_RETRIES" default:"3"`
	RetryBase  time.Duration `envconfig:"UNITPAY_MERCHANT_RETRY_BASE" default:"200ms"`
}

type ChainConfig struct {
	RPCURL          string `envconfig:"UNITPAY_CHAIN_RPC_URL"`
	ContractAddress string `envconfig:"UNITPAY_CHAIN_CONTRACT_ADDRESS"`
}

// Enabled reports whether an RPC endpoint and contract are configured.
func (c ChainConfig) Enabled() bool {
	return strings.TrimSpace(c.RPCURL) != "" && strings.TrimSpace(c.ContractAddress) != ""
}

type TasksConfig struct {
	PollIntervalMS             int `envconfig:"UNITPAY_TASKS_POLL_MS" default:"1000"`
	DefaultMaxRetries          int `envconfig:"UNITPAY_TASKS_MAX_RETRIES" default:"3"`
	DefaultProcessingTimeoutMS int `envconfig:"UNITPAY_TASKS_PROCESSING_TIMEOUT_MS" default:"300000"`
}

// PollInterval returns the processor poll cadence.
func (t TasksConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"UNITPAY_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"UNITPAY_CRON_LOCK_TTL" default:"5m"`
	StaleIntentAge time.Duration `envconfig:"UNITPAY_CRON_STALE_INTENT_AGE" default:"30m"`

	// MaxSettlementAttempts caps failed settlement and confirmation tasks per
	// intent before the stale sweep fails the intent instead of re-settling.
	MaxSettlementAttempts int `envconfig:"UNITPAY_CRON_MAX_SETTLEMENT_ATTEMPTS" default:"3"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"UNITPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"UNITPAY_AUTO_MIGRATE" default:"false"`
	LogRelay    bool `envconfig:"UNITPAY_LOG_RELAY" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
