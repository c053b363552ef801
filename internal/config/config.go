// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL       string
	DBPoolMinConns    int
	DBPoolMaxConns    int
	DBPoolMaxLife     time.Duration
	DBConnectAttempts int
	DBAutoMigrate     bool

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	LogLevel    string

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Alerting
	AlertThreshold  float64
	ExpoPushURL     string
	ExpoAccessToken string
	PushChunkSize   int
	DispatchWorkers int
	ProviderTimeout time.Duration

	// Cache
	CacheEnabled bool
	RedisURL     string

	// Maintenance
	ReadingRetention time.Duration

	// Event bus (optional)
	AMQPURL      string
	AMQPExchange string

	// MQTT ingestion (optional)
	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		DBPoolMinConns:    envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns:    envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:     time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		DBConnectAttempts: envInt("DB_CONNECT_ATTEMPTS", 10),
		DBAutoMigrate:     envBool("DB_AUTO_MIGRATE", true),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 3000)),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		AlertThreshold:  envFloat("ALERT_THRESHOLD_CM", 100),
		ExpoPushURL:     envOr("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		ExpoAccessToken: envOr("EXPO_ACCESS_TOKEN", ""),
		PushChunkSize:   envInt("PUSH_CHUNK_SIZE", 100),
		DispatchWorkers: envInt("DISPATCH_WORKERS", 4),
		ProviderTimeout: envDuration("PROVIDER_TIMEOUT", 10*time.Second),

		CacheEnabled: envBool("CACHE_ENABLED", true),
		RedisURL:     envOr("REDIS_URL", ""),

		ReadingRetention: envDuration("READING_RETENTION", 0),

		AMQPURL:      envOr("AMQP_URL", ""),
		AMQPExchange: envOr("AMQP_EXCHANGE", "ultrasense"),

		MQTTBrokerURL: envOr("MQTT_BROKER_URL", ""),
		MQTTTopic:     envOr("MQTT_TOPIC", "ultrasense/distance"),
		MQTTClientID:  envOr("MQTT_CLIENT_ID", "ultrasense-server"),
	}

	if cfg.PushChunkSize < 1 || cfg.PushChunkSize > 100 {
		return nil, fmt.Errorf("PUSH_CHUNK_SIZE must be between 1 and 100, got %d", cfg.PushChunkSize)
	}
	if !(cfg.AlertThreshold > 0) || math.IsInf(cfg.AlertThreshold, 1) {
		return nil, fmt.Errorf("ALERT_THRESHOLD_CM must be a positive number, got %v", cfg.AlertThreshold)
	}
	if cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", cfg.DispatchWorkers)
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
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

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
