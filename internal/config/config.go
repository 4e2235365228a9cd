// Package config provides configuration management for the IP report scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scan      ScanConfig
	Providers ProvidersConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ScanConfig holds scan engine configuration
type ScanConfig struct {
	Workers     int           // Size of the shared worker pool
	QueueSize   int           // Capacity of the ready-job queue
	MaxAttempts int           // Attempts before a retryable failure becomes terminal
	BackoffBase time.Duration // First retry delay
	BackoffCap  time.Duration // Ceiling for retry delays
	CallTimeout time.Duration // Per provider call deadline
}

// ProvidersConfig holds provider adapter configuration
type ProvidersConfig struct {
	Enabled   []string
	AbuseIPDB AbuseIPDBConfig
}

// AbuseIPDBConfig holds AbuseIPDB adapter configuration
type AbuseIPDBConfig struct {
	APIKey     string
	BaseURL    string
	MaxAgeDays int
	RPS        float64 // Outbound requests per second against the provider
	Burst      int
}

// CacheConfig holds profile cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds inbound API rate limiting configuration
type RateLimitConfig struct {
	FreeTier    int
	BasicTier   int
	PremiumTier int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "ip_report_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Scan: ScanConfig{
			Workers:     getEnvAsInt("SCAN_WORKERS", 16),
			QueueSize:   getEnvAsInt("SCAN_QUEUE_SIZE", 1024),
			MaxAttempts: getEnvAsInt("SCAN_MAX_ATTEMPTS", 3),
			BackoffBase: getEnvAsDuration("SCAN_BACKOFF_BASE", 500*time.Millisecond),
			BackoffCap:  getEnvAsDuration("SCAN_BACKOFF_CAP", 30*time.Second),
			CallTimeout: getEnvAsDuration("SCAN_CALL_TIMEOUT", 10*time.Second),
		},
		Providers: ProvidersConfig{
			Enabled: splitList(getEnv("PROVIDERS_ENABLED", "abuseIPDB")),
			AbuseIPDB: AbuseIPDBConfig{
				APIKey:     getEnv("ABUSEIPDB_API_KEY", ""),
				BaseURL:    getEnv("ABUSEIPDB_BASE_URL", "https://api.abuseipdb.com/api/v2"),
				MaxAgeDays: getEnvAsInt("ABUSEIPDB_MAX_AGE_DAYS", 90),
				RPS:        getEnvAsFloat("ABUSEIPDB_RPS", 5),
				Burst:      getEnvAsInt("ABUSEIPDB_BURST", 10),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("PROFILE_CACHE_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			FreeTier:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 10),
			BasicTier:   getEnvAsInt("RATE_LIMIT_BASIC_TIER", 50),
			PremiumTier: getEnvAsInt("RATE_LIMIT_PREMIUM_TIER", 200),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// splitList parses a comma-separated list, dropping empty entries
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
