//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/app"
	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/handler"
)

const jwtSecret = "integration-test-secret"

var (
	baseURL    string
	httpClient *http.Client
	pool       *pgxpool.Pool

	aliceToken string
	bobToken   string
	carolToken string
	adminToken string
)

// Response types, decoded the way an API client would.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type itemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
}

type orderRequest struct {
	Items          []itemRequest `json:"items,omitempty"`
	ShippingOption string        `json:"shippingOption,omitempty"`
	PromoCode      string        `json:"promoCode,omitempty"`
}

type lineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type summary struct {
	Subtotal decimal.Decimal  `json:"subtotal"`
	Shipping decimal.Decimal  `json:"shipping"`
	Taxes    decimal.Decimal  `json:"taxes"`
	Discount *decimal.Decimal `json:"discount"`
	Total    decimal.Decimal  `json:"total"`
}

type quoteResponse struct {
	UserID         string     `json:"userId"`
	ShippingOption string     `json:"shippingOption"`
	Items          []lineItem `json:"items"`
	Summary        summary    `json:"summary"`
	PromoCode      string     `json:"promoCode"`
	FreeShipping   bool       `json:"freeShipping"`
}

type orderResponse struct {
	quoteResponse
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type promotionResponse struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Code                string          `json:"code"`
	Type                string          `json:"type"`
	Value               decimal.Decimal `json:"value"`
	AppliesToCategories []string        `json:"appliesToCategories"`
	UsageLimit          int             `json:"usageLimit"`
	UsedCount           int             `json:"usedCount"`
	MaxUsesPerUser      int             `json:"maxUsesPerUser"`
	Active              bool            `json:"active"`
}

type applicationResponse struct {
	Promotion promotionResponse `json:"promotion"`
	Totals    struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		Discount decimal.Decimal `json:"discount"`
		Total    decimal.Decimal `json:"total"`
	} `json:"totals"`
	FreeShipping bool `json:"freeShipping"`
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgContainer.Terminate(context.Background()) }()

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	addr, err := freeAddr()
	if err != nil {
		log.Fatalf("free port: %v", err)
	}

	cfg := &app.Config{
		Addr:        addr,
		DatabaseURL: dsn,
		Auth:        app.AuthConfig{JWTSecret: jwtSecret, CookieName: handler.DefaultSessionCookie},
		Pricing: app.PricingConfig{
			TaxRate:  "0.05",
			Shipping: app.ShippingConfig{Standard: "50", Express: "120"},
		},
		RateLimit: app.RateLimitConfig{Max: 10_000, Window: time.Minute},
		CORS:      app.CORSConfig{Origins: []string{"*"}},
		Graceful:  app.GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
	cfg.Breaker.MaxRequests = 3
	cfg.Breaker.Interval = 15 * time.Second
	cfg.Breaker.Timeout = 30 * time.Second
	cfg.Breaker.MinRequests = 5
	cfg.Breaker.FailureRatio = 0.6

	srvCtx, stop := context.WithCancel(context.Background())
	srvDone := make(chan error, 1)
	go func() { srvDone <- app.Run(srvCtx, zap.NewNop(), noopTelemetry{}, cfg) }()
	defer func() {
		stop()
		if err := <-srvDone; err != nil {
			log.Printf("server: %v", err)
		}
	}()

	baseURL = "http://" + addr
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// Migrations run inside app.Run; wait for readiness before seeding.
	if err := waitReady(ctx); err != nil {
		log.Fatalf("wait for API: %v", err)
	}

	pool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := seed(ctx, pool); err != nil {
		log.Fatalf("seed: %v", err)
	}
	if err := issueTokens(); err != nil {
		log.Fatalf("issue tokens: %v", err)
	}

	return m.Run()
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().String(), nil
}

func waitReady(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		resp, err := httpClient.Get(baseURL + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`INSERT INTO products (id, name, price, category) VALUES
			('p-shoe', 'Classic Sneaker', 100.00, 'shoes'),
			('p-cap', 'Logo Cap', 40.00, 'hats'),
			('p-tee', 'Basic Tee', 25.00, 'apparel')`,
		`INSERT INTO carts (id, user_id) VALUES ('cart-alice', 'u-alice')`,
		`INSERT INTO cart_items (cart_id, product_id, quantity, position) VALUES ('cart-alice', 'p-tee', 2, 0)`,
		`INSERT INTO promotions (id, name, code, type, value, min_order_value, applies_to_categories, starts_at, ends_at, usage_limit, max_uses_per_user) VALUES
			('promo-ten', 'Ten percent', 'TEN', 'percent', 10, 0, '{}', NOW() - INTERVAL '1 day', NULL, 0, 1),
			('promo-shoes', 'Shoe week', 'SHOES20', 'percent', 20, 0, '{shoes}', NULL, NULL, 0, 0),
			('promo-ship', 'Free shipping', 'FREESHIP', 'free_shipping', 0, 100, '{}', NULL, NULL, 0, 0),
			('promo-save', 'Save 50', 'SAVE50', 'fixed', 50, 250, '{}', NULL, NULL, 0, 0),
			('promo-solo', 'Single use', 'SOLO', 'fixed', 5, 0, '{}', NULL, NULL, 1, 0),
			('promo-old', 'Spring sale', 'SPRING', 'percent', 15, 0, '{}', NOW() - INTERVAL '30 days', NOW() - INTERVAL '1 day', 0, 1)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func issueTokens() error {
	sec := handler.NewSecurityHandler([]byte(jwtSecret), "")
	for _, t := range []struct {
		dst *string
		id  auth.Identity
	}{
		{&aliceToken, auth.Identity{UserID: "u-alice"}},
		{&bobToken, auth.Identity{UserID: "u-bob"}},
		{&carolToken, auth.Identity{UserID: "u-carol"}},
		{&adminToken, auth.Identity{UserID: "u-admin", Role: "admin"}},
	} {
		tok, err := sec.Issue(t.id, time.Hour)
		if err != nil {
			return err
		}
		*t.dst = tok
	}
	return nil
}

// do sends a JSON request and returns the response with its body read.
func do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func requireError(t *testing.T, resp *http.Response, data []byte, status int) errorResponse {
	t.Helper()
	require.Equal(t, status, resp.StatusCode, string(data))
	e := decode[errorResponse](t, data)
	require.Equal(t, status, e.Code)
	require.NotEmpty(t, e.Message)
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
