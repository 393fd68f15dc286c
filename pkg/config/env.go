package config

const EnvPrefix = "KILNPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "KILNPAY_APP_ENV"
	EnvPort     = "KILNPAY_APP_PORT"
	EnvLogLevel = "KILNPAY_LOG_LEVEL"

	EnvDBDSN  = "KILNPAY_DB_DSN"
	EnvDBHost = "KILNPAY_DB_HOST"
	EnvDBUser = "KILNPAY_DB_USER"
	EnvDBName = "KILNPAY_DB_NAME"

	EnvRedisURL = "KILNPAY_REDIS_URL"

	EnvJWTSecret   = "KILNPAY_JWT_SECRET"
	EnvJWTIssuer   = "KILNPAY_JWT_ISSUER"
	EnvJWTAudience = "KILNPAY_JWT_AUDIENCE"

	EnvRazorpayKeyID     = "KILNPAY_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret = "KILNPAY_RAZORPAY_KEY_SECRET"

	EnvPaymentsCurrency       = "KILNPAY_PAYMENTS_CURRENCY"
	EnvPaymentsMaxAmount      = "KILNPAY_PAYMENTS_MAX_AMOUNT"
	EnvPaymentsLimiterBackend = "KILNPAY_PAYMENTS_LIMITER_BACKEND"
	EnvPaymentsVerifyWindow   = "KILNPAY_PAYMENTS_VERIFY_WINDOW"
	EnvPaymentsVerifyAttempts = "KILNPAY_PAYMENTS_VERIFY_MAX_ATTEMPTS"

	EnvSendgridAPIKey = "KILNPAY_SENDGRID_API_KEY"
	EnvSendgridFrom   = "KILNPAY_SENDGRID_FROM_EMAIL"

	EnvCORSAllowedOrigins = "KILNPAY_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
