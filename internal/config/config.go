// Package config loads service configuration from the environment.
// A .env file is honored in development; real deployments inject the
// variables directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	defaultPort          = 8080
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultProbeInterval = 15 * time.Second
	defaultSessionCache  = 1024
)

// Config holds every knob the service reads from the environment.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int

	// GeminiAPIKey authenticates outbound calls to the Generative Language API.
	GeminiAPIKey string

	// GeminiBaseURL is the API root; overridable for tests and proxies.
	GeminiBaseURL string

	// GeminiModel is the model identifier used in the :generateContent path.
	GeminiModel string

	// SessionSecret signs device access tokens (HS256).
	SessionSecret string

	// StorageBackend selects the consent/device store: "postgres" or "memory".
	StorageBackend string

	// Postgres connection parameters (BLUEPRINT_DB_* scheme).
	DBDatabase string
	DBPassword string
	DBUsername string
	DBPort     string
	DBHost     string
	DBSchema   string

	// ProbeInterval is how often the connectivity monitor re-checks reachability.
	ProbeInterval time.Duration

	// SessionCacheSize bounds the number of live chat sessions kept in memory.
	SessionCacheSize int
}

// Load reads the environment (and an optional .env file) into a Config.
// It fails fast on the two secrets the service cannot run without.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:             getEnvAsInt("PORT", defaultPort),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", defaultGeminiBaseURL),
		GeminiModel:      getEnv("GEMINI_MODEL", defaultGeminiModel),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		StorageBackend:   getEnv("STORAGE_BACKEND", "postgres"),
		DBDatabase:       getEnv("BLUEPRINT_DB_DATABASE", ""),
		DBPassword:       getEnv("BLUEPRINT_DB_PASSWORD", ""),
		DBUsername:       getEnv("BLUEPRINT_DB_USERNAME", ""),
		DBPort:           getEnv("BLUEPRINT_DB_PORT", "5432"),
		DBHost:           getEnv("BLUEPRINT_DB_HOST", "localhost"),
		DBSchema:         getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		ProbeInterval:    getEnvAsDuration("CONNECTIVITY_PROBE_INTERVAL", defaultProbeInterval),
		SessionCacheSize: getEnvAsInt("SESSION_CACHE_SIZE", defaultSessionCache),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable is required")
	}
	if cfg.StorageBackend != "postgres" && cfg.StorageBackend != "memory" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be 'postgres' or 'memory', got %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// DatabaseURL assembles the pgx connection string from the BLUEPRINT_DB_* parts.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBDatabase, c.DBSchema)
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	// Accept plain seconds ("15") as well as Go durations ("15s").
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return defaultValue
}
