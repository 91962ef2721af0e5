package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "UNITPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:unitpay.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv         = "UNITPAY_APP_ENV"
	EnvPort           = "UNITPAY_APP_PORT"
	EnvLogLevel       = "UNITPAY_LOG_LEVEL"
	EnvDBDSN          = "UNITPAY_DB_DSN"
	EnvDBDriver       = "UNITPAY_DB_DRIVER"
	EnvDBHost         = "UNITPAY_DB_HOST"
	EnvDBUser         = "UNITPAY_DB_USER"
	EnvDBPassword     = "UNITPAY_DB_PASSWORD"
	EnvDBName         = "UNITPAY_DB_NAME"
	EnvRedisURL       = "UNITPAY_REDIS_URL"
	EnvOracleSecret   = "UNITPAY_ORACLE_JWT_SECRET"
	EnvOracleCallback = "UNITPAY_ORACLE_CALLBACK_URL"
	EnvAPIBaseURL     = "UNITPAY_API_BASE_URL"
	EnvChainRPCURL    = "UNITPAY_CHAIN_RPC_URL"
	EnvChainContract  = "UNITPAY_CHAIN_CONTRACT_ADDRESS"
	EnvTasksTimeoutMS = "UNITPAY_TASKS_PROCESSING_TIMEOUT_MS"
	EnvUseSQLite      = "UNITPAY_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
