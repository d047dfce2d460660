package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/checkout"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/handler"
	"github.com/xenking/storefront-pricing/internal/storage/breaker"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
	"github.com/xenking/storefront-pricing/internal/storage/rediscache"
	"github.com/xenking/storefront-pricing/pkg/health"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	calc, err := cfg.Pricing.Calculator()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. Catalog reads go through the circuit breaker; promotion
	// lookups through the Redis cache when one is configured.
	catalog := breaker.NewCatalog(postgres.NewProductRepository(pool), cfg.Breaker, lg.Named("breaker"))
	healthSvc.AddReadinessCheck("catalog", time.Second, catalog.Check)

	carts := postgres.NewCartRepository(pool)
	orders := postgres.NewOrderRepository(pool)

	var promos promotion.Repository = postgres.NewPromotionRepository(pool)
	orderOpts := []order.Option{order.WithMeterProvider(m.MeterProvider())}
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		cache := rediscache.NewPromotions(promos, client, cfg.Redis.TTL, lg.Named("cache"))
		promos = cache
		orderOpts = append(orderOpts, order.WithInvalidator(cache))
		healthSvc.AddReadinessCheck("redis", time.Second, health.RedisCheck(client))
		lg.Info("Promotion cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	// Domain services.
	checkoutSvc, err := checkout.NewService(catalog, carts, promos, calc, checkout.Options{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}
	promotionSvc := promotion.NewService(promos)
	orderSvc := order.NewService(checkoutSvc, orders, orderOpts...)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(
		checkoutSvc,
		promotionSvc,
		orderSvc,
		handler.NewSecurityHandler([]byte(cfg.Auth.JWTSecret), cfg.Auth.CookieName),
	).Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RouteContext(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   httpmiddleware.IsProbe,
			}),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
