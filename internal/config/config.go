package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Database
	DatabaseDSN string

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Scheduler / batch
	SchedulerWorkers int

	// Cache
	OrgSettingsTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Audit trail webhook. Empty URL disables delivery.
	AuditWebhookURL    string
	AuditWebhookSecret string
	AuditHTTPTimeout   time.Duration

	// Auth
	JWTSecret string
	// Bcrypt hash of the shared secret guarding /internal routes.
	InternalSecretHash string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=ledger port=5432 sslmode=disable"),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		SchedulerWorkers: getEnvInt("SCHEDULER_WORKERS", 8),

		OrgSettingsTTL: getEnvDuration("ORG_SETTINGS_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		AuditWebhookURL:    getEnv("AUDIT_WEBHOOK_URL", ""),
		AuditWebhookSecret: getEnv("AUDIT_WEBHOOK_SECRET", ""),
		AuditHTTPTimeout:   getEnvDuration("AUDIT_HTTP_TIMEOUT", 10*time.Second),

		JWTSecret:          getEnv("JWT_SECRET", "ledger-default-dev-secret-change-me"),
		InternalSecretHash: getEnv("INTERNAL_SECRET_HASH", ""),
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
		if i, err := strconv.Atoi(v); err == nil {
			return i
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
