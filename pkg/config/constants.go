package config

// EnvPrefix namespaces struct-derived keys; every field also carries an explicit alt name.
const EnvPrefix = "SLYE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv       = "SLYE_APP_ENV"
	EnvPort         = "SLYE_APP_PORT"
	EnvPublicURL    = "SLYE_APP_PUBLIC_URL"
	EnvDBDSN        = "SLYE_DB_DSN"
	EnvDBHost       = "SLYE_DB_HOST"
	EnvDBUser       = "SLYE_DB_USER"
	EnvDBName       = "SLYE_DB_NAME"
	EnvRedisURL     = "SLYE_REDIS_URL"
	EnvJWTSecret    = "SLYE_AUTH_JWT_SECRET"
	EnvUseSQLite    = "SLYE_USE_SQLITE"
	EnvStripeAPIKey = "SLYE_STRIPE_API_KEY"
	EnvStripeSecret = "SLYE_STRIPE_SECRET"
	EnvKieAPIKey    = "SLYE_KIE_API_KEY"
	EnvSubmitLimit  = "SLYE_GENERATION_SUBMIT_LIMIT"
	EnvLedgerTopic  = "SLYE_PUBSUB_LEDGER_TOPIC"
)

var partialDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
