package config

import (
	"os"
	"strconv"
	"time"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type Config struct {
	// Database (read model and error logs)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT issued by the relay; sub is the caller principal
	JWTSecret string

	// Ledger
	JournalPath string
	GenesisPath string

	// Threshold policy
	ValidationThreshold      uint32
	RejectionThreshold       uint32
	VerificationThreshold    uint32
	ReopenThreshold          uint32
	UpholdRejectionThreshold uint32
	AppealThreshold          uint32
	ReopenLimit              uint32
	ExpirationTimeout        time.Duration

	// Moderation gate
	ModerationSigningKey string
	RequireModeration    bool

	// Event sinks
	RedisURL          string
	RedisChannel      string
	SinkRetryMaxDelay time.Duration

	// Observability
	LogLevel     string
	LogRetention time.Duration
	SentryDSN    string
	Environment  string
	OTelEnabled  bool
	OTelPretty   bool

	// Server
	Port         string
	CORSOrigins  string
	RateLimitMax int
}

func Load() *Config {
	defaults := lifecycle.DefaultPolicy()
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "civic_ledger"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		JournalPath: getEnv("JOURNAL_PATH", "data/journal"),
		GenesisPath: getEnv("GENESIS_PATH", "genesis.json"),

		ValidationThreshold:      parseUint(getEnv("VALIDATION_THRESHOLD", ""), defaults.ValidationThreshold),
		RejectionThreshold:       parseUint(getEnv("REJECTION_THRESHOLD", ""), defaults.RejectionThreshold),
		VerificationThreshold:    parseUint(getEnv("VERIFICATION_THRESHOLD", ""), defaults.VerificationThreshold),
		ReopenThreshold:          parseUint(getEnv("REOPEN_THRESHOLD", ""), defaults.ReopenThreshold),
		UpholdRejectionThreshold: parseUint(getEnv("UPHOLD_REJECTION_THRESHOLD", ""), defaults.UpholdRejectionThreshold),
		AppealThreshold:          parseUint(getEnv("APPEAL_THRESHOLD", ""), defaults.AppealThreshold),
		ReopenLimit:              parseUint(getEnv("REOPEN_LIMIT", ""), defaults.ReopenLimit),
		ExpirationTimeout:        parseDuration(getEnv("EXPIRATION_TIMEOUT", ""), defaults.ExpirationTimeout),

		ModerationSigningKey: getEnv("MODERATION_SIGNING_KEY", ""),
		RequireModeration:    getEnv("REQUIRE_MODERATION", "") == "true",

		RedisURL:          getEnv("REDIS_URL", ""),
		RedisChannel:      getEnv("REDIS_CHANNEL", "civic-ledger:events"),
		SinkRetryMaxDelay: parseDuration(getEnv("SINK_RETRY_MAX_ELAPSED", "10s"), 10*time.Second),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogRetention: parseDuration(getEnv("LOG_RETENTION", ""), 30*24*time.Hour),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		Environment:  getEnv("ENVIRONMENT", "development"),
		OTelEnabled:  getEnv("OTEL_ENABLED", "") == "true",
		OTelPretty:   getEnv("OTEL_STDOUT_PRETTY", "") == "true",

		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		RateLimitMax: parseInt(getEnv("RATE_LIMIT_MAX", ""), 120),
	}
}

// Policy assembles the threshold policy. It is validated by the engine.
func (c *Config) Policy() lifecycle.Policy {
	return lifecycle.Policy{
		ValidationThreshold:      c.ValidationThreshold,
		RejectionThreshold:       c.RejectionThreshold,
		VerificationThreshold:    c.VerificationThreshold,
		ReopenThreshold:          c.ReopenThreshold,
		UpholdRejectionThreshold: c.UpholdRejectionThreshold,
		AppealThreshold:          c.AppealThreshold,
		ReopenLimit:              c.ReopenLimit,
		ExpirationTimeout:        c.ExpirationTimeout,
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseUint(s string, fallback uint32) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(n)
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
