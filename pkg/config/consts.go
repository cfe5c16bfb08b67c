package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "PFADS"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names shared between Load and tests.
const (
	EnvAppEnv   = "PFADS_APP_ENV"
	EnvPort     = "PFADS_APP_PORT"
	EnvDBDSN    = "PFADS_DB_DSN"
	EnvDBHost   = "PFADS_DB_HOST"
	EnvDBUser   = "PFADS_DB_USER"
	EnvDBName   = "PFADS_DB_NAME"
	EnvRedisURL = "PFADS_REDIS_URL"

	EnvJWTSecret  = "PFADS_JWT_SECRET"
	EnvJWTIssuer  = "PFADS_JWT_ISSUER"
	EnvJWTExpMins = "PFADS_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "PFADS_GCP_PROJECT_ID"

	EnvPubSubAdEventsTopic        = "PFADS_PUBSUB_AD_EVENTS_TOPIC"
	EnvPubSubAdEventsSubscription = "PFADS_PUBSUB_AD_EVENTS_SUBSCRIPTION"
	EnvPubSubNotificationTopic    = "PFADS_PUBSUB_NOTIFICATION_TOPIC"

	EnvWalletBaseURL = "PFADS_WALLET_BASE_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
