package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/sinaabedii/arian-etc-sub001/pkg/config"
	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

// Storage backends for the persisted mirror.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

// Config holds all configuration for the storefront sync service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8010"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Per-session rate limit on the HTTP API
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Commerce backend
	BackendURL         string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	BackendTimeout     time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	BackendMaxRetries  int           `env:"BACKEND_MAX_RETRIES" envDefault:"2"`
	BreakerTimeout     time.Duration `env:"BACKEND_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinRequests uint32        `env:"BACKEND_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Sync behaviour
	CallTimeout                    time.Duration `env:"SYNC_CALL_TIMEOUT" envDefault:"10s"`
	PageSize                       int           `env:"SYNC_PAGE_SIZE" envDefault:"50"`
	CartRollbackOnFailure          bool          `env:"CART_ROLLBACK_ON_FAILURE" envDefault:"true"`
	CartOverwriteOnEmptyRemote     bool          `env:"CART_OVERWRITE_ON_EMPTY_REMOTE" envDefault:"false"`
	WishlistRollbackOnFailure      bool          `env:"WISHLIST_ROLLBACK_ON_FAILURE" envDefault:"false"`
	WishlistOverwriteOnEmptyRemote bool          `env:"WISHLIST_OVERWRITE_ON_EMPTY_REMOTE" envDefault:"true"`

	// Sessions
	SessionIdleTTL         time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionJanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" envDefault:"1m"`
	SessionMountTimeout    time.Duration `env:"SESSION_MOUNT_TIMEOUT" envDefault:"15s"`

	// Persisted mirror
	Storage            string        `env:"STORAGE_BACKEND" envDefault:"redis"`
	SlowQueryThreshold time.Duration `env:"STORAGE_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL  time.Duration `env:"REDIS_TTL" envDefault:"720h"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"storefront.db"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	switch c.Storage {
	case StorageRedis, StoragePostgres, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage)
	}
	switch c.LogFormat {
	case logger.FormatJSON, logger.FormatConsole:
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("SYNC_CALL_TIMEOUT must be positive")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.PageSize)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
