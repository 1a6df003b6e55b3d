package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Remote account store (Supabase). The store is only considered
	// configured when the URL is a well-formed https URL and the anon
	// key exceeds a minimal length; otherwise the shell runs fully
	// offline and no remote call is attempted anywhere.
	SupabaseURL     string
	SupabaseAnonKey string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Profile lookup cache
	CacheTTL time.Duration

	// Auth-change polling interval for the remote watcher
	AuthWatchInterval time.Duration

	// Local mirror: JSON state file, or Redis when MirrorRedisAddr is set
	StatePath       string
	MirrorRedisAddr string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SupabaseURL:     getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey: getEnv("SUPABASE_ANON_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		AuthWatchInterval: getEnvDuration("AUTH_WATCH_INTERVAL", 30*time.Second),

		StatePath:       getEnv("STATE_PATH", "olipack_state.json"),
		MirrorRedisAddr: getEnv("MIRROR_REDIS_ADDR", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// minKeyLength guards against placeholder keys selecting the cloud path.
const minKeyLength = 10

// RemoteConfigured reports whether the remote account store should be
// used at all. Anything else means offline mode, which is not an error.
func (c *Config) RemoteConfigured() bool {
	return strings.HasPrefix(c.SupabaseURL, "https://") && len(c.SupabaseAnonKey) > minKeyLength
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
