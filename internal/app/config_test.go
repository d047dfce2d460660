package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestApplyPlatformDefaults(t *testing.T) {
	cfg := Config{Addr: defaultAddr}
	require.NoError(t, cfg.applyPlatformDefaults(env(map[string]string{
		"DATABASE_URL": "postgres://db/storefront",
		"PORT":         "9090",
		"REDIS_URL":    "redis://:secret@cache:6380/2",
	})))

	assert.Equal(t, "postgres://db/storefront", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.Redis.Enabled())
}

func TestApplyPlatformDefaults_ExplicitWins(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit"}
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.applyPlatformDefaults(env(map[string]string{
		"DATABASE_URL": "postgres://platform",
		"PORT":         "9090",
		"REDIS_URL":    "redis://other:6379",
	})))

	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestApplyPlatformDefaults_BadRedisURL(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.applyPlatformDefaults(env(map[string]string{"REDIS_URL": "http://nope"})))
}

func TestPricingConfig_Calculator(t *testing.T) {
	cfg := PricingConfig{TaxRate: "0.10", Shipping: ShippingConfig{Standard: "40", Express: "99.90"}}
	calc, err := cfg.Calculator()
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.10").Equal(calc.TaxRate()))
	assert.True(t, decimal.NewFromInt(40).Equal(calc.ShippingRate(pricing.ShippingStandard)))
	assert.True(t, decimal.RequireFromString("99.90").Equal(calc.ShippingRate(pricing.ShippingExpress)))
	assert.True(t, decimal.NewFromInt(40).Equal(calc.ShippingRate("drone")))
}

func TestPricingConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  PricingConfig
	}{
		{"tax not a number", PricingConfig{TaxRate: "five", Shipping: ShippingConfig{Standard: "50", Express: "120"}}},
		{"negative tax", PricingConfig{TaxRate: "-0.05", Shipping: ShippingConfig{Standard: "50", Express: "120"}}},
		{"bad shipping", PricingConfig{TaxRate: "0.05", Shipping: ShippingConfig{Standard: "fifty", Express: "120"}}},
		{"negative shipping", PricingConfig{TaxRate: "0.05", Shipping: ShippingConfig{Standard: "50", Express: "-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Calculator()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		DatabaseURL: "postgres://db",
		Auth:        AuthConfig{JWTSecret: "s"},
		Pricing:     PricingConfig{TaxRate: "0.05", Shipping: ShippingConfig{Standard: "50", Express: "120"}},
	}
	require.NoError(t, valid.validate())

	noDB := valid
	noDB.DatabaseURL = ""
	assert.ErrorContains(t, noDB.validate(), "database URL")

	noSecret := valid
	noSecret.Auth.JWTSecret = ""
	assert.ErrorContains(t, noSecret.validate(), "JWT secret")
}
