// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/platform/validator"

	"github.com/joho/godotenv"
)

// =============================================================================
// Consumer Config Interfaces
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
	GetDatabaseMinConns() int32
}

// MigrationConfig provides settings for schema migrations.
type MigrationConfig interface {
	DatabaseConfig
	GetMigrationsEnabled() bool
}

// RedisConfig provides Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetLeadSyncSchedule() string
}

// SyncConfig provides settings for the ingestion and dispatch pipeline.
type SyncConfig interface {
	GetIngestConcurrency() int
	GetDispatchConcurrency() int
	GetWebsiteLockTTL() time.Duration
	GetDispatchLockTTL() time.Duration
}

// HTTPClientConfig provides settings for outbound website and dialer calls.
type HTTPClientConfig interface {
	GetWebsiteFetchTimeout() time.Duration
	GetDialerPushTimeout() time.Duration
	GetOutboundRatePerSecond() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string        `validate:"required"`
	DatabaseURL           string        `validate:"required"`
	DatabaseMaxConns      int           `validate:"min=1,max=1000,gtefield=DatabaseMinConns"`
	DatabaseMinConns      int           `validate:"min=0"`
	MigrationsEnabled     bool
	RedisURL              string        `validate:"omitempty,url"`
	RedisTLSInsecure      bool
	AsynqQueueName        string        `validate:"required"`
	AsynqConcurrency      int           `validate:"min=1"`
	LeadSyncSchedule      string        `validate:"required"`
	WebsiteFetchTimeout   time.Duration `validate:"gt=0"`
	DialerPushTimeout     time.Duration `validate:"gt=0"`
	OutboundRatePerSecond float64       `validate:"gte=0"`
	IngestConcurrency     int           `validate:"min=1"`
	DispatchConcurrency   int           `validate:"min=1"`
	WebsiteLockTTL        time.Duration `validate:"gt=0"`
	DispatchLockTTL       time.Duration `validate:"gt=0"`
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return int32(c.DatabaseMaxConns) }
func (c *Config) GetDatabaseMinConns() int32 { return int32(c.DatabaseMinConns) }
func (c *Config) GetMigrationsEnabled() bool { return c.MigrationsEnabled }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string   { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int    { return c.AsynqConcurrency }
func (c *Config) GetLeadSyncSchedule() string { return c.LeadSyncSchedule }

// SyncConfig implementation
func (c *Config) GetIngestConcurrency() int         { return c.IngestConcurrency }
func (c *Config) GetDispatchConcurrency() int       { return c.DispatchConcurrency }
func (c *Config) GetWebsiteLockTTL() time.Duration  { return c.WebsiteLockTTL }
func (c *Config) GetDispatchLockTTL() time.Duration { return c.DispatchLockTTL }

// HTTPClientConfig implementation
func (c *Config) GetWebsiteFetchTimeout() time.Duration { return c.WebsiteFetchTimeout }
func (c *Config) GetDialerPushTimeout() time.Duration   { return c.DialerPushTimeout }
func (c *Config) GetOutboundRatePerSecond() float64     { return c.OutboundRatePerSecond }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:      mustInt(getEnv("DB_MAX_CONNS", "25")),
		DatabaseMinConns:      mustInt(getEnv("DB_MIN_CONNS", "2")),
		MigrationsEnabled:     strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "leadsync"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		LeadSyncSchedule:      getEnv("LEAD_SYNC_SCHEDULE", "@every 10m"),
		WebsiteFetchTimeout:   mustDuration(getEnv("WEBSITE_FETCH_TIMEOUT", "30s")),
		DialerPushTimeout:     mustDuration(getEnv("DIALER_PUSH_TIMEOUT", "60s")),
		OutboundRatePerSecond: mustFloat(getEnv("OUTBOUND_RATE_PER_SEC", "0")),
		IngestConcurrency:     mustInt(getEnv("INGEST_CONCURRENCY", "8")),
		DispatchConcurrency:   mustInt(getEnv("DISPATCH_CONCURRENCY", "8")),
		WebsiteLockTTL:        mustDuration(getEnv("WEBSITE_LOCK_TTL", "5m")),
		DispatchLockTTL:       mustDuration(getEnv("DISPATCH_LOCK_TTL", "15m")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return -1
	}
	return result
}
