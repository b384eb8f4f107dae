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
	Auth         AuthConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Kie          KieConfig
	Generation   GenerationConfig
	Cron         CronConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SLYE_APP_ENV" required:"true"`
	Port         string `envconfig:"SLYE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SLYE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SLYE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SLYE_LOG_WARN_STACK" default:"false"`
	// PublicURL is the browser-facing origin used for checkout redirects.
	PublicURL string `envconfig:"SLYE_APP_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Origin returns PublicURL without a trailing slash.
func (a AppConfig) Origin() string {
	return strings.TrimRight(strings.TrimSpace(a.PublicURL), "/")
}

type ServiceConfig struct {
	Kind string `envconfig:"SLYE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SLYE_DB_DSN"`
	Driver string `envconfig:"SLYE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SLYE_DB_HOST"`
	Port     int    `envconfig:"SLYE_DB_PORT" default:"5432"`
	User     string `envconfig:"SLYE_DB_USER"`
	Password string `envconfig:"SLYE_DB_PASSWORD"`
	Name     string `envconfig:"SLYE_DB_NAME"`
	SSLMode  string `envconfig:"SLYE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SLYE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SLYE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SLYE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SLYE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SLYE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SLYE_REDIS_ADDR"`
	Password     string        `envconfig:"SLYE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SLYE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SLYE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SLYE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SLYE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SLYE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SLYE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig verifies access tokens minted by the external identity provider.
type AuthConfig struct {
	JWTSecret string `envconfig:"SLYE_AUTH_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"SLYE_AUTH_JWT_ISSUER"`
	Audience  string `envconfig:"SLYE_AUTH_JWT_AUDIENCE" default:"authenticated"`
	// CookieName carries the access token on browser navigations (checkout confirm).
	CookieName string `envconfig:"SLYE_AUTH_COOKIE_NAME" default:"slye-access-token"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SLYE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SLYE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SLYE_STRIPE_API_KEY"`
	Secret string `envconfig:"SLYE_STRIPE_SECRET"`
	Env    string `envconfig:"SLYE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type KieConfig struct {
	APIKey  string        `envconfig:"SLYE_KIE_API_KEY"`
	BaseURL string        `envconfig:"SLYE_KIE_BASE_URL" default:"https://api.kie.ai"`
	Timeout time.Duration `envconfig:"SLYE_KIE_TIMEOUT" default:"30s"`
	// CallbackURL is forwarded as callBackUrl; empty disables push callbacks.
	CallbackURL   string `envconfig:"SLYE_KIE_CALLBACK_URL"`
	CallbackToken string `envconfig:"SLYE_KIE_CALLBACK_TOKEN"`
}

type GenerationConfig struct {
	DefaultBackend  string        `envconfig:"SLYE_GENERATION_DEFAULT_BACKEND" default:"kie"`
	SubmitLimit     int           `envconfig:"SLYE_GENERATION_SUBMIT_LIMIT" default:"10"`
	SubmitWindow    time.Duration `envconfig:"SLYE_GENERATION_SUBMIT_WINDOW" default:"1m"`
	IdempotencyTTL  time.Duration `envconfig:"SLYE_GENERATION_IDEMPOTENCY_TTL" default:"24h"`
	PollInterval    time.Duration `envconfig:"SLYE_GENERATION_POLL_INTERVAL" default:"4s"`
	StaleAfter      time.Duration `envconfig:"SLYE_GENERATION_STALE_AFTER" default:"10m"`
	SyncBatchSize   int           `envconfig:"SLYE_GENERATION_SYNC_BATCH_SIZE" default:"50"`
	WebhookEventTTL time.Duration `envconfig:"SLYE_STRIPE_WEBHOOK_EVENT_TTL" default:"720h"`
}

type CronConfig struct {
	Schedule string        `envconfig:"SLYE_CRON_SCHEDULE" default:"@every 1m"`
	LockTTL  time.Duration `envconfig:"SLYE_CRON_LOCK_TTL" default:"50s"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SLYE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SLYE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SLYE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SLYE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic        string `envconfig:"SLYE_PUBSUB_LEDGER_TOPIC" default:"slye-ledger-events"`
	LedgerSubscription string `envconfig:"SLYE_PUBSUB_LEDGER_SUBSCRIPTION" default:"slye-ledger-analytics"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"SLYE_BIGQUERY_DATASET" default:"slye"`
	LedgerEventsTable string `envconfig:"SLYE_BIGQUERY_LEDGER_TABLE" default:"ledger_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SLYE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SLYE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SLYE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		db.DSN = "file:slye.db?cache=shared&_foreign_keys=on"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range partialDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
