package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	Endpoint EndpointConfig
	Retry    RetryConfig
	Redis    RedisConfig

	PostgresDSN string

	KafkaBrokers []string
	KafkaTopic   string

	// BatchConcurrency bounds in-flight transmission attempts issued by the
	// batch orchestrator.
	BatchConcurrency int
	// BatchWindow bounds how long a batch observes members still retrying.
	BatchWindow time.Duration

	// CertExpiryWindow is how far ahead of expiresAt a certificate is
	// flagged as expiring; CertSweepInterval is how often the sweep runs.
	CertExpiryWindow  time.Duration
	CertSweepInterval time.Duration
}

// EndpointConfig points at the regulatory submission endpoint.
type EndpointConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RetryConfig drives the transmission backoff state machine.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// RedisConfig configures the optional Redis-backed duplicate index.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:          envString("STAMPGATE_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		Endpoint: EndpointConfig{
			BaseURL: envString("REGULATORY_ENDPOINT_URL", "http://localhost:9090"),
			APIKey:  os.Getenv("REGULATORY_ENDPOINT_API_KEY"),
			Timeout: envDuration("REGULATORY_ENDPOINT_TIMEOUT", 30*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries: envInt("TRANSMISSION_MAX_RETRIES", 3),
			BaseDelay:  envDuration("TRANSMISSION_BASE_DELAY", 2*time.Second),
			CapDelay:   envDuration("TRANSMISSION_CAP_DELAY", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		KafkaBrokers:      brokers,
		KafkaTopic:        envString("KAFKA_AUDIT_TOPIC", "stampgate.audit"),
		BatchConcurrency:  envInt("BATCH_CONCURRENCY", 8),
		BatchWindow:       envDuration("BATCH_WINDOW", 2*time.Minute),
		CertExpiryWindow:  envDuration("CERT_EXPIRY_WINDOW", 30*24*time.Hour),
		CertSweepInterval: envDuration("CERT_SWEEP_INTERVAL", time.Hour),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
