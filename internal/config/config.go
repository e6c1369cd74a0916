package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Email transport
	PostmarkServerToken  string
	PostmarkAccountToken string
	SenderEmail          string
	DevMailDir           string
	FrontendURL          string

	// Comma-separated last-resort recipients for the emergency path.
	EmergencyAdminEmails []string

	// Delivery workers
	Workers      int
	MaxRetries   int
	RetryBackoff []time.Duration
	SendRate     int

	// Background poll intervals
	RetryInterval   time.Duration
	StrandedAfter   time.Duration
	JanitorInterval time.Duration

	// Throttling
	ThrottleWindow time.Duration
	ThrottleMax    int

	// Digest
	DigestTolerance time.Duration

	// Emergency contact cache
	CacheRefreshInterval time.Duration
	CacheTTL             time.Duration

	// Delivery log retention
	CompletedRetention time.Duration
	CompletedKeep      int
	FailedRetention    time.Duration
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		PostmarkServerToken:  os.Getenv("POSTMARK_SERVER_TOKEN"),
		PostmarkAccountToken: os.Getenv("POSTMARK_ACCOUNT_TOKEN"),
		SenderEmail:          getEnv("SENDER_EMAIL", "alerts@localhost"),
		DevMailDir:           getEnv("DEV_MAIL_DIR", "./outbox"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:3000"),

		EmergencyAdminEmails: getList("EMERGENCY_ADMIN_EMAILS"),

		Workers:    getInt("DELIVERY_WORKERS", 5),
		MaxRetries: getInt("MAX_RETRIES", 3),
		RetryBackoff: []time.Duration{
			getDuration("RETRY_BACKOFF_1", 5*time.Second),
			getDuration("RETRY_BACKOFF_2", 30*time.Second),
			getDuration("RETRY_BACKOFF_3", 120*time.Second),
		},
		SendRate: getInt("SEND_RATE_PER_SEC", 20),

		RetryInterval:   getDuration("RETRY_INTERVAL", 10*time.Second),
		StrandedAfter:   getDuration("STRANDED_AFTER", 5*time.Minute),
		JanitorInterval: getDuration("JANITOR_INTERVAL", time.Hour),

		ThrottleWindow: getDuration("THROTTLE_WINDOW", 15*time.Minute),
		ThrottleMax:    getInt("THROTTLE_MAX_PER_WINDOW", 1),

		DigestTolerance: getDuration("DIGEST_TOLERANCE", 5*time.Minute),

		CacheRefreshInterval: getDuration("CONTACT_CACHE_REFRESH", 15*time.Minute),
		CacheTTL:             getDuration("CONTACT_CACHE_TTL", time.Hour),

		CompletedRetention: getDuration("COMPLETED_RETENTION", 24*time.Hour),
		CompletedKeep:      getInt("COMPLETED_KEEP", 100),
		FailedRetention:    getDuration("FAILED_RETENTION", 7*24*time.Hour),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
