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
	Razorpay     RazorpayConfig
	Payments     PaymentsConfig
	Sendgrid     SendgridConfig
	Notifier     NotifierConfig
	CORS         CORSConfig
	Retention    RetentionConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KILNPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"KILNPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KILNPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KILNPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KILNPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KILNPAY_DB_DSN"`
	Driver string `envconfig:"KILNPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KILNPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"KILNPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KILNPAY_DB_USER"`
	LegacyPassword string `envconfig:"KILNPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"KILNPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"KILNPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KILNPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KILNPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KILNPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KILNPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KILNPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KILNPAY_REDIS_ADDR"`
	Password     string        `envconfig:"KILNPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"KILNPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KILNPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KILNPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KILNPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KILNPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KILNPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the hosted identity provider's HS256 access tokens.
type JWTConfig struct {
	Secret   string        `envconfig:"KILNPAY_JWT_SECRET" required:"true"`
	Issuer   string        `envconfig:"KILNPAY_JWT_ISSUER"`
	Audience string        `envconfig:"KILNPAY_JWT_AUDIENCE" default:"authenticated"`
	Leeway   time.Duration `envconfig:"KILNPAY_JWT_LEEWAY" default:"30s"`
}

type RazorpayConfig struct {
	KeyID     string `envconfig:"KILNPAY_RAZORPAY_KEY_ID" required:"true"`
	KeySecret string `envconfig:"KILNPAY_RAZORPAY_KEY_SECRET" required:"true"`
	Env       string `envconfig:"KILNPAY_RAZORPAY_ENV" default:"test"`
}

// Environment returns the normalized Razorpay environment (test/live).
func (r RazorpayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(r.Env))
	if env == "" {
		return "test"
	}
	return env
}

const (
	LimiterBackendMemory = "memory"
	LimiterBackendRedis  = "redis"
)

type PaymentsConfig struct {
	Currency          string        `envconfig:"KILNPAY_PAYMENTS_CURRENCY" default:"INR"`
	MaxAmount         int64         `envconfig:"KILNPAY_PAYMENTS_MAX_AMOUNT" default:"500000"`
	LimiterBackend    string        `envconfig:"KILNPAY_PAYMENTS_LIMITER_BACKEND" default:"memory"`
	VerifyWindow      time.Duration `envconfig:"KILNPAY_PAYMENTS_VERIFY_WINDOW" default:"30m"`
	VerifyMaxAttempts int           `envconfig:"KILNPAY_PAYMENTS_VERIFY_MAX_ATTEMPTS" default:"5"`
	IdempotencyTTL    time.Duration `envconfig:"KILNPAY_PAYMENTS_IDEMPOTENCY_TTL" default:"24h"`
	ProviderTimeout   time.Duration `envconfig:"KILNPAY_PAYMENTS_PROVIDER_TIMEOUT" default:"15s"`
}

func (p *PaymentsConfig) validate() error {
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if len(p.Currency) != 3 {
		return fmt.Errorf("%s must be a 3-letter currency code", EnvPaymentsCurrency)
	}
	if p.MaxAmount <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsMaxAmount)
	}
	p.LimiterBackend = strings.ToLower(strings.TrimSpace(p.LimiterBackend))
	switch p.LimiterBackend {
	case LimiterBackendMemory, LimiterBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentsLimiterBackend, LimiterBackendMemory, LimiterBackendRedis)
	}
	if p.VerifyWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsVerifyWindow)
	}
	if p.VerifyMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsVerifyAttempts)
	}
	return nil
}

type SendgridConfig struct {
	APIKey      string `envconfig:"KILNPAY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"KILNPAY_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"KILNPAY_SENDGRID_FROM_NAME" default:"Kiln Studio"`
	AdminBCC    string `envconfig:"KILNPAY_SENDGRID_ADMIN_BCC"`
}

type NotifierConfig struct {
	BatchSize      int `envconfig:"KILNPAY_NOTIFIER_BATCH_SIZE" default:"25"`
	PollIntervalMS int `envconfig:"KILNPAY_NOTIFIER_POLL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"KILNPAY_NOTIFIER_MAX_ATTEMPTS" default:"8"`
	RetryBaseMS    int `envconfig:"KILNPAY_NOTIFIER_RETRY_BASE_MS" default:"30000"`
	RetryMaxMS     int `envconfig:"KILNPAY_NOTIFIER_RETRY_MAX_MS" default:"1800000"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"KILNPAY_CORS_ALLOWED_ORIGINS" default:"*"`
}

type RetentionConfig struct {
	NotificationDays int `envconfig:"KILNPAY_RETENTION_NOTIFICATION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"KILNPAY_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"KILNPAY_CRON_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KILNPAY_AUTO_MIGRATE" default:"false"`

	// AllowMismatchedRazorpayKeys skips the key prefix check against KILNPAY_RAZORPAY_ENV.
	AllowMismatchedRazorpayKeys bool `envconfig:"KILNPAY_FEATURE_ALLOW_MISMATCHED_RAZORPAY_KEYS" default:"false"`
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
