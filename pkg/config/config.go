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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Wallet       WalletConfig
	Budget       BudgetConfig
	Monitor      MonitorConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PFADS_APP_ENV" required:"true"`
	Port         string `envconfig:"PFADS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PFADS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PFADS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PFADS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PFADS_DB_DSN"`
	Driver string `envconfig:"PFADS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PFADS_DB_HOST"`
	LegacyPort     int    `envconfig:"PFADS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PFADS_DB_USER"`
	LegacyPassword string `envconfig:"PFADS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PFADS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PFADS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PFADS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PFADS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PFADS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PFADS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PFADS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PFADS_REDIS_ADDR"`
	Password     string        `envconfig:"PFADS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PFADS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PFADS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PFADS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PFADS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PFADS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PFADS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PFADS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PFADS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PFADS_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PFADS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PFADS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PFADS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PFADS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PFADS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AdEventsTopic        string        `envconfig:"PFADS_PUBSUB_AD_EVENTS_TOPIC" required:"true"`
	AdEventsSubscription string        `envconfig:"PFADS_PUBSUB_AD_EVENTS_SUBSCRIPTION" required:"true"`
	NotificationTopic    string        `envconfig:"PFADS_PUBSUB_NOTIFICATION_TOPIC" default:"pfads-notification-events"`
	IdempotencyTTL       time.Duration `envconfig:"PFADS_PUBSUB_IDEMPOTENCY_TTL" default:"24h"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"PFADS_BIGQUERY_DATASET" default:"packfinderz_ads"`
	SpendFactsTable string `envconfig:"PFADS_BIGQUERY_SPEND_TABLE" default:"spend_event_facts"`
}

type WalletConfig struct {
	BaseURL      string        `envconfig:"PFADS_WALLET_BASE_URL" required:"true"`
	ServiceToken string        `envconfig:"PFADS_WALLET_SERVICE_TOKEN"`
	Timeout      time.Duration `envconfig:"PFADS_WALLET_TIMEOUT" default:"5s"`
}

// BudgetConfig carries the money-safety policy knobs. These are product
// policy, not derived values; tune per environment rather than in code.
type BudgetConfig struct {
	MaxLockCents       int64   `envconfig:"PFADS_BUDGET_MAX_LOCK_CENTS" default:"10000000"`
	MaxEventCostCents  int64   `envconfig:"PFADS_BUDGET_MAX_EVENT_COST_CENTS" default:"10000"`
	WarnUtilization    float64 `envconfig:"PFADS_BUDGET_WARN_UTILIZATION" default:"0.9"`
	SweepWarnLow       float64 `envconfig:"PFADS_BUDGET_SWEEP_WARN_LOW" default:"0.8"`
	ResetWindowMinutes int     `envconfig:"PFADS_BUDGET_RESET_WINDOW_MINUTES" default:"30"`
}

type MonitorConfig struct {
	SweepInterval time.Duration `envconfig:"PFADS_MONITOR_SWEEP_INTERVAL" default:"10m"`
}

// RateLimitConfig throttles the portfolio optimization endpoint, which
// fans out one scoring pass per campaign and is the most expensive call
// the API serves.
type RateLimitConfig struct {
	OptimizeWindow        time.Duration `envconfig:"PFADS_RATELIMIT_OPTIMIZE_WINDOW" default:"1m"`
	OptimizeIPLimit       int           `envconfig:"PFADS_RATELIMIT_OPTIMIZE_IP_LIMIT" default:"10"`
	OptimizeBusinessLimit int           `envconfig:"PFADS_RATELIMIT_OPTIMIZE_BUSINESS_LIMIT" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
