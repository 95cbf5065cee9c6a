package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CLUBOS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CLUBOS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `env:"JWT_SECRET" usage:"HMAC secret used to verify bearer tokens" flag:"jwt-secret"`
	CouponValue string `env:"COUPON_VALUE" default:"2" usage:"Monetary value of a single coupon" flag:"coupon-value"`
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig points at the facility selection store. Selection is disabled
// when Addr is empty.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address (host:port)" flag:"redis-addr"`
	Password string `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database number" flag:"redis-db"`
}

// RateLimitConfig controls the per-user sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CLUBOS",
		Files:     []string{"config.yaml", "/etc/clubos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value formats.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CLUBOS_DATABASE_URL or DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required: set CLUBOS_JWT_SECRET")
	}
	v, err := c.Coupon()
	if err != nil {
		return err
	}
	if v.IsNegative() {
		return errors.Errorf("coupon value %s must not be negative", c.CouponValue)
	}
	return nil
}

// Coupon parses CouponValue.
func (c *Config) Coupon() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(c.CouponValue)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse coupon value %q", c.CouponValue)
	}
	return v, nil
}

// applyPlatformDefaults maps the platform-provided DATABASE_URL and PORT
// variables onto the configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
