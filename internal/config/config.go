package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort              int `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`
	RequestTimeoutSeconds int `env:"STOREFRONT_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Sessions idle for longer than SessionIdleMinutes are dropped every
	// SessionSweepSeconds.
	SessionIdleMinutes  int `env:"SESSION_IDLE_MINUTES" envDefault:"30"`
	SessionSweepSeconds int `env:"SESSION_SWEEP_SECONDS" envDefault:"60"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Commerce backend
	BackendURL            string `env:"BACKEND_URL" envDefault:"http://localhost:8080/api"`
	BackendTimeoutSeconds int    `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"15"`

	// Circuit breaker settings for backend calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Identity
	JWTSecret       string `env:"JWT_SECRET" envDefault:""`
	JWTIssuer       string `env:"JWT_ISSUER" envDefault:""`
	TrustUserHeader bool   `env:"TRUST_USER_HEADER" envDefault:"false"`

	// Coupon applied to selections whose subtotal exceeds the threshold
	CouponThreshold decimal.Decimal `env:"COUPON_THRESHOLD" envDefault:"50"`
	CouponDiscount  decimal.Decimal `env:"COUPON_DISCOUNT" envDefault:"50"`

	// eSewa merchant
	EsewaFormURL     string `env:"ESEWA_FORM_URL" envDefault:"https://rc-epay.esewa.com.np/api/epay/main/v2/form"`
	EsewaProductCode string `env:"ESEWA_PRODUCT_CODE" envDefault:""`
	EsewaSecretKey   string `env:"ESEWA_SECRET_KEY" envDefault:""`
	EsewaSuccessURL  string `env:"ESEWA_SUCCESS_URL" envDefault:"http://localhost:3000/success"`
	EsewaFailureURL  string `env:"ESEWA_FAILURE_URL" envDefault:"http://localhost:3000/failure"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
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
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if c.SessionIdleMinutes < 1 || c.SessionSweepSeconds < 1 {
		return fmt.Errorf("SESSION_IDLE_MINUTES and SESSION_SWEEP_SECONDS must be positive")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL %q: %w", c.BackendURL, err)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.CouponThreshold.IsNegative() || c.CouponDiscount.IsNegative() {
		return fmt.Errorf("COUPON_THRESHOLD and COUPON_DISCOUNT must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.Environment == "production" && c.JWTSecret == "" && !c.TrustUserHeader {
		return fmt.Errorf("JWT_SECRET is required in production unless TRUST_USER_HEADER is set")
	}
	return nil
}

// CartTTLDuration returns the persisted cart lifetime.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// SessionIdle returns how long a session may stay unused.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// SessionSweepInterval returns how often idle sessions are swept.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}
