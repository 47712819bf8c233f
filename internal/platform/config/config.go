// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production deployments
// override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Aggregator holds the state aggregator's endpoint and credentials.
type Aggregator struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// RequestTimeout bounds one submission round trip.
	RequestTimeout time.Duration
}

// Database configures the PostgreSQL pool. An empty URL selects the
// in-memory stores for dev mode.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis configures the code-set cache. Empty URL disables caching.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit relay. Empty brokers disable the relay.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Compliance tunes the pre-submission rule engine.
type Compliance struct {
	GeofenceRadiusMiles float64
	// AuthorizationMode is "block" or "warn".
	AuthorizationMode string
}

// Retry tunes the submission retry budget.
type Retry struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	PollInterval time.Duration
	Concurrency  int
}

// Config is the full runtime configuration.
type Config struct {
	Server     Server
	Aggregator Aggregator
	Database   Database
	Redis      Redis
	Kafka      Kafka
	Compliance Compliance
	Retry      Retry
}

// FromEnv reads the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("EVV_ADDR", ":8080"),
			ShutdownTimeout: envDuration("EVV_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Aggregator: Aggregator{
			BaseURL:        envString("EVV_AGGREGATOR_URL", "http://localhost:9090"),
			TokenURL:       envString("EVV_AGGREGATOR_TOKEN_URL", "http://localhost:9090/oauth/token"),
			ClientID:       os.Getenv("EVV_AGGREGATOR_CLIENT_ID"),
			ClientSecret:   os.Getenv("EVV_AGGREGATOR_CLIENT_SECRET"),
			RequestTimeout: envDuration("EVV_AGGREGATOR_TIMEOUT", 30*time.Second),
		},
		Database: Database{
			URL:             os.Getenv("EVV_DATABASE_URL"),
			MaxOpenConns:    envInt("EVV_DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("EVV_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("EVV_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("EVV_REDIS_URL"),
			PoolSize:     envInt("EVV_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("EVV_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("EVV_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("EVV_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("EVV_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("EVV_KAFKA_BROKERS"),
			AuditTopic: envString("EVV_KAFKA_AUDIT_TOPIC", "evv.audit.events"),
		},
		Compliance: Compliance{
			GeofenceRadiusMiles: envFloat("EVV_GEOFENCE_RADIUS_MILES", 0.25),
			AuthorizationMode:   envString("EVV_AUTHORIZATION_MODE", "block"),
		},
		Retry: Retry{
			MaxAttempts:  envInt("EVV_RETRY_MAX_ATTEMPTS", 5),
			BaseBackoff:  envDuration("EVV_RETRY_BASE_BACKOFF", 30*time.Second),
			PollInterval: envDuration("EVV_RETRY_POLL_INTERVAL", 15*time.Second),
			Concurrency:  envInt("EVV_RETRY_CONCURRENCY", 4),
		},
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
