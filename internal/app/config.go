package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/storage/breaker"
	"github.com/xenking/storefront-pricing/internal/storage/rediscache"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       rediscache.Config
	Auth        AuthConfig
	Pricing     PricingConfig
	Breaker     breaker.Config
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls session token verification.
type AuthConfig struct {
	JWTSecret  string `usage:"HS256 secret used to verify session tokens (STOREFRONT_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	CookieName string `default:"storefront_session" usage:"Cookie carrying the session token when no bearer header is sent"`
}

// PricingConfig holds the flat tax rate and shipping rate table. Amounts are
// decimal strings so they never pass through float64.
type PricingConfig struct {
	TaxRate  string `default:"0.05" usage:"Flat tax rate applied to the pre-discount subtotal"`
	Shipping ShippingConfig
}

// ShippingConfig is the shipping rate table.
type ShippingConfig struct {
	Standard string `default:"50"  usage:"Standard shipping rate"`
	Express  string `default:"120" usage:"Express shipping rate"`
}

// Calculator builds the totals calculator from the configured rates.
func (c PricingConfig) Calculator() (*pricing.Calculator, error) {
	taxRate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return nil, errors.Wrap(err, "parse tax rate")
	}
	if taxRate.IsNegative() {
		return nil, errors.Errorf("tax rate %s is negative", taxRate)
	}

	rates := pricing.ShippingRates{}
	for option, raw := range map[string]string{
		pricing.ShippingStandard: c.Shipping.Standard,
		pricing.ShippingExpress:  c.Shipping.Express,
	} {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s shipping rate", option)
		}
		if rate.IsNegative() {
			return nil, errors.Errorf("%s shipping rate %s is negative", option, rate)
		}
		rates[option] = rate
	}
	return pricing.NewCalculator(rates, taxRate), nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
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

// LoadConfig loads configuration from environment variables, YAML config
// files, and platform-provided variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("JWT secret is required: set STOREFRONT_AUTH_JWT_SECRET")
	}
	if _, err := c.Pricing.Calculator(); err != nil {
		return errors.Wrap(err, "pricing config")
	}
	return nil
}

// applyPlatformDefaults maps the variables hosting platforms inject
// (DATABASE_URL, PORT, REDIS_URL) onto the STOREFRONT_ configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if u := getenv("REDIS_URL"); u != "" && c.Redis.Addr == "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return errors.Wrap(err, "parse REDIS_URL")
		}
		c.Redis.Addr = opts.Addr
		c.Redis.Password = opts.Password
		c.Redis.DB = opts.DB
	}
	return nil
}
