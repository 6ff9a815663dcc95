// Package config provides environment-based configuration for the Plan2Tasks backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the API server.
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Planner session authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Google OAuth client (fails closed when incomplete)
	Google GoogleConfig

	// Server configuration
	APIPort int
	APIHost string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Task delivery configuration
	Push PushConfig
}

// GoogleConfig holds the registered OAuth client credentials.
// RedirectURI must byte-for-byte match the URI registered with Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Timeout bounds every call to Google's token and Tasks endpoints.
	Timeout time.Duration
}

// PushConfig holds task delivery fan-out configuration.
type PushConfig struct {
	// MaxConcurrency bounds the number of users pushed to in parallel.
	MaxConcurrency int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDSN: getEnv("DATABASE_URL", "postgres://localhost:5432/plan2tasks?sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTExpiry:   getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
			Timeout:      getDurationEnv("GOOGLE_HTTP_TIMEOUT", 15*time.Second),
		},
		APIPort:         getIntEnv("API_PORT", 8080),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Push: PushConfig{
			MaxConcurrency: getIntEnv("PUSH_MAX_CONCURRENCY", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
// A missing OAuth client credential is a configuration error, not a
// runtime one: the server refuses to start rather than emit broken
// authorization URLs.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.Google.RedirectURI == "" {
		return fmt.Errorf("GOOGLE_REDIRECT_URI is required")
	}
	return nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return &Config{
		DatabaseDSN: getEnv("DATABASE_URL", "postgres://localhost:5432/plan2tasks?sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", "development-secret-key-min-32-chars"),
		JWTExpiry:   getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", "dev-client-id"),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", "dev-client-secret"),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/oauth/callback"),
			Timeout:      getDurationEnv("GOOGLE_HTTP_TIMEOUT", 15*time.Second),
		},
		APIPort:         getIntEnv("API_PORT", 8080),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Push: PushConfig{
			MaxConcurrency: getIntEnv("PUSH_MAX_CONCURRENCY", 4),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
