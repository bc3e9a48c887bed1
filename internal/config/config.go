package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// Token signing.
	TokenSecret   string
	TokenIssuer   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Verification codes.
	CodeTTL         time.Duration
	CodeMaxAttempts int

	// Rate limits. Durable windows are enforced against the rate_limits table;
	// the per-IP burst limiter in front of public endpoints is in-memory.
	CodeRequestLimit    int           // per identity
	CodeRequestWindow   time.Duration
	CodeRequestIPLimit  int           // per IP hash, all identities
	APIRequestLimit     int           // per IP hash on authenticated routes
	APIRequestWindow    time.Duration

	// Retention.
	AuditRetention     time.Duration
	SweepInterval      time.Duration
	AuditArchiveBucket string
	AlertTopicARN      string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	VerificationCodes string
	Sessions          string
	RateLimits        string
	AuditLog          string
	Assessments       string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			VerificationCodes: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
			Sessions:          getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			RateLimits:        getEnv("DYNAMO_TABLE_RATE_LIMITS", "rate_limits"),
			AuditLog:          getEnv("DYNAMO_TABLE_AUDIT_LOG", "audit_log"),
			Assessments:       getEnv("DYNAMO_TABLE_ASSESSMENTS", "assessments"),
		},

		TokenSecret: getEnv("TOKEN_SECRET", ""),
		TokenIssuer: getEnv("TOKEN_ISSUER", "healthtrack-api"),
		AccessTTL:   getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTTL:  getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		CodeTTL:         getEnvDuration("VERIFICATION_CODE_TTL", 15*time.Minute),
		CodeMaxAttempts: getEnvInt("VERIFICATION_CODE_MAX_ATTEMPTS", 5),

		CodeRequestLimit:   getEnvInt("RATE_LIMIT_CODE_REQUEST", 5),
		CodeRequestWindow:  getEnvDuration("RATE_LIMIT_CODE_REQUEST_WINDOW", time.Hour),
		CodeRequestIPLimit: getEnvInt("RATE_LIMIT_CODE_REQUEST_IP", 30),
		APIRequestLimit:    getEnvInt("RATE_LIMIT_API", 300),
		APIRequestWindow:   getEnvDuration("RATE_LIMIT_API_WINDOW", time.Minute),

		AuditRetention:     getEnvDuration("AUDIT_RETENTION", 30*24*time.Hour),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Hour),
		AuditArchiveBucket: getEnv("AUDIT_ARCHIVE_BUCKET", "healthtrack-audit-archive"),
		AlertTopicARN:      getEnv("ALERT_TOPIC_ARN", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
