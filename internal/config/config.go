package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/Ariya-Dice/tansoo/pkg/config"
)

// Slot backends.
const (
	SlotMemory   = "memory"
	SlotFile     = "file"
	SlotRedis    = "redis"
	SlotPostgres = "postgres"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort       int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	RequestTimeout time.Duration `env:"CART_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes   int64         `env:"CART_MAX_BODY_BYTES" envDefault:"65536"`

	// Slot storage
	SlotBackend string `env:"SLOT_BACKEND" envDefault:"redis"`
	SlotFileDir string `env:"SLOT_FILE_DIR" envDefault:"./data/carts"`

	// Redis
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass      string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"cart:"`
	RedisPoolSize  int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisTimeout   time.Duration `env:"REDIS_TIMEOUT" envDefault:"3s"`

	// Cart TTL in hours (default: 7 days). Redis expires keys after it;
	// Postgres rows untouched for longer are purged.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// PostgreSQL
	DatabaseURL       string        `env:"DATABASE_URL" envDefault:""`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	SlotPurgeInterval time.Duration `env:"SLOT_PURGE_INTERVAL" envDefault:"1h"`
	SlowOpThreshold   time.Duration `env:"SLOW_OP_THRESHOLD" envDefault:"200ms"`

	// Kafka. No brokers disables cart events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Downstream services. An empty URL disables the feature that needs it.
	CatalogURL        string        `env:"CATALOG_URL" envDefault:""`
	CatalogCacheTTL   time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1m"`
	OrderServiceURL   string        `env:"ORDER_SERVICE_URL" envDefault:""`
	DownstreamTimeout time.Duration `env:"DOWNSTREAM_TIMEOUT" envDefault:"10s"`
	DownstreamRetries int           `env:"DOWNSTREAM_MAX_RETRIES" envDefault:"2"`

	// Cart limits
	MaxQuantityPerLine int `env:"CART_MAX_QUANTITY_PER_LINE" envDefault:"100"`
	MaxLines           int `env:"CART_MAX_LINES" envDefault:"50"`

	// Rate limiting per session (or IP). Zero RPS disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS for the browser front ends
	CORSOrigins          []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// Pprof allowlist
	PprofCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// CartTTLDuration returns CartTTL as a duration.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// EventsEnabled reports whether Kafka brokers are configured.
func (c *Config) EventsEnabled() bool {
	for _, b := range c.KafkaBrokers {
		if b != "" {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
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

	switch c.SlotBackend {
	case SlotMemory, SlotRedis:
	case SlotFile:
		if c.SlotFileDir == "" {
			return fmt.Errorf("SLOT_FILE_DIR is required for the file slot")
		}
	case SlotPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres slot")
		}
		if c.SlotPurgeInterval <= 0 {
			return fmt.Errorf("SLOT_PURGE_INTERVAL must be positive")
		}
	default:
		return fmt.Errorf("SLOT_BACKEND must be one of memory, file, redis, postgres, got %q", c.SlotBackend)
	}

	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if c.RedisPoolSize < 0 || c.RedisTimeout < 0 {
		return fmt.Errorf("redis pool size and timeout must not be negative")
	}
	if c.MaxQuantityPerLine < 1 || c.MaxLines < 1 {
		return fmt.Errorf("cart limits must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is on")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}

	for name, raw := range map[string]string{"CATALOG_URL": c.CatalogURL, "ORDER_SERVICE_URL": c.OrderServiceURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	return nil
}
