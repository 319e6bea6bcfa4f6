// Package config loads process-wide configuration from environment
// variables. Configuration is read once at startup and immutable for the
// lifetime of the process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
	Jobs   JobsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Metrics/health listener (separate port for scrapers and probes)
	MetricsPort string

	CORSOrigins []string
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	// Type selects the user/document store backend: "mongo" or "memory".
	Type string

	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// RedisURL enables the redis-backed token revocation set. Empty means
	// the in-memory set is used.
	RedisURL string
}

// AuthConfig holds token and password-hash configuration
type AuthConfig struct {
	// JWTSecret signs session tokens. Required outside development.
	JWTSecret string
	TokenTTL  time.Duration
	// BcryptCost is the password-hash work factor.
	BcryptCost int
	// SeedPath optionally points at a YAML file of bootstrap users.
	SeedPath string
}

// JobsConfig holds maintenance job schedules
type JobsConfig struct {
	// RevocationSweep purges expired entries from the revocation set.
	RevocationSweep string
	// NPKRepair assigns codes to perawat records missing one.
	NPKRepair string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("KREDENSIA_HOST", "0.0.0.0"),
			Port:            getEnv("KREDENSIA_PORT", "8080"),
			ReadTimeout:     getEnvDuration("KREDENSIA_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("KREDENSIA_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("KREDENSIA_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("KREDENSIA_SHUTDOWN_TIMEOUT", 30*time.Second),
			MetricsPort:     getEnv("KREDENSIA_METRICS_PORT", "9090"),
			CORSOrigins:     getEnvList("KREDENSIA_CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Type:          getEnv("KREDENSIA_STORE_TYPE", "mongo"),
			MongoURI:      getEnv("KREDENSIA_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("KREDENSIA_MONGO_DATABASE", "kredensia"),
			MongoTimeout:  getEnvDuration("KREDENSIA_MONGO_TIMEOUT", 10*time.Second),
			RedisURL:      getEnv("KREDENSIA_REDIS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("KREDENSIA_JWT_SECRET", ""),
			TokenTTL:   getEnvDuration("KREDENSIA_TOKEN_TTL", 8*time.Hour),
			BcryptCost: getEnvInt("KREDENSIA_BCRYPT_COST", 12),
			SeedPath:   getEnv("KREDENSIA_SEED_PATH", ""),
		},
		Jobs: JobsConfig{
			RevocationSweep: getEnv("KREDENSIA_REVOCATION_SWEEP_SCHEDULE", "*/10 * * * *"),
			NPKRepair:       getEnv("KREDENSIA_NPK_REPAIR_SCHEDULE", "30 1 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("KREDENSIA_JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between 10 and %d", bcrypt.MaxCost)
	}
	switch c.Store.Type {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Store.Type == "mongo" && c.Store.MongoURI == "" {
		return fmt.Errorf("KREDENSIA_MONGO_URI is required for the mongo store")
	}
	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
