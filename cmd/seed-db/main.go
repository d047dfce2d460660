// Command seed-db loads demo catalog, cart and promotion data.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/product"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/handler"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "print demo session tokens signed with this secret (or STOREFRONT_AUTH_JWT_SECRET env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("STOREFRONT_AUTH_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	if jwtSecret != "" {
		if err := printTokens(lg, jwtSecret); err != nil {
			lg.Fatal("Issue tokens", zap.Error(err))
		}
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	if err := seedProducts(ctx, lg, pool, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCarts(ctx, lg, pool, products); err != nil {
		return errors.Wrap(err, "seed carts")
	}
	if err := seedPromotions(ctx, lg, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	return nil
}

// readProducts decodes [{id, name, price, category}].
func readProducts(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var products []product.Product
	err = jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "price":
				var n jx.Num
				if n, err = d.Num(); err == nil {
					p.Price, err = decimal.NewFromString(n.String())
				}
			default:
				err = d.Skip()
			}
			return errors.Wrapf(err, "%q", key)
		}); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, products []product.Product) error {
	const q = `INSERT INTO products (id, name, price, category)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category`

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(q, p.ID, p.Name, p.Price, p.Category)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

// demoUsers own the seeded carts and receive printed tokens.
var demoUsers = []auth.Identity{
	{UserID: "user-alice"},
	{UserID: "user-bob"},
	{UserID: "user-admin", Role: "admin"},
}

func seedCarts(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, products []product.Product) error {
	if len(products) < 3 {
		return errors.New("need at least three products for demo carts")
	}
	carts := []struct {
		id, userID string
		items      []string
	}{
		{"cart-alice", "user-alice", []string{products[0].ID, products[2].ID}},
		{"cart-bob", "user-bob", []string{products[1].ID}},
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, c := range carts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO carts (id, user_id, active) VALUES ($1, $2, TRUE)
ON CONFLICT (id) DO UPDATE SET active = TRUE, updated_at = now()`,
				c.id, c.userID,
			); err != nil {
				return errors.Wrapf(err, "upsert cart %s", c.id)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.id); err != nil {
				return errors.Wrapf(err, "clear cart %s", c.id)
			}
			for pos, productID := range c.items {
				if _, err := tx.Exec(ctx,
					`INSERT INTO cart_items (cart_id, product_id, quantity, position) VALUES ($1, $2, $3, $4)`,
					c.id, productID, pos+1, pos,
				); err != nil {
					return errors.Wrapf(err, "add %s to cart %s", productID, c.id)
				}
			}
			lg.Info("Seeded cart", zap.String("id", c.id), zap.String("user", c.userID), zap.Int("items", len(c.items)))
		}
		return nil
	})
}

func seedPromotions(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	now := time.Now().UTC()
	in30Days := now.AddDate(0, 0, 30)
	lastMonth := now.AddDate(0, -1, 0)
	yesterday := now.AddDate(0, 0, -1)

	promos := []promotion.Promotion{
		{
			ID: "promo-welcome10", Name: "Welcome 10%", Code: "WELCOME10", Type: promotion.TypePercent,
			Description: "10% off your first order", Value: decimal.NewFromInt(10),
			StartsAt: &now, MaxUsesPerUser: 1, Active: true,
		},
		{
			ID: "promo-shoes20", Name: "Shoe Week", Code: "SHOES20", Type: promotion.TypePercent,
			Description: "20% off all shoes", Value: decimal.NewFromInt(20),
			AppliesToCategories: []string{"shoes"}, StartsAt: &now, EndsAt: &in30Days, MaxUsesPerUser: 2, Active: true,
		},
		{
			ID: "promo-save50", Name: "Save 50", Code: "SAVE50", Type: promotion.TypeFixed,
			Description: "50 off orders over 250", Value: decimal.NewFromInt(50), MinOrderValue: decimal.NewFromInt(250),
			StartsAt: &now, UsageLimit: 100, MaxUsesPerUser: 1, Active: true,
		},
		{
			ID: "promo-freeship", Name: "Free Shipping", Code: "FREESHIP", Type: promotion.TypeFreeShipping,
			Description: "Free standard shipping", MinOrderValue: decimal.NewFromInt(75),
			StartsAt: &now, MaxUsesPerUser: 0, Active: true,
		},
		{
			ID: "promo-expired", Name: "Spring Sale", Code: "SPRING15", Type: promotion.TypePercent,
			Description: "Ended promotion kept for reporting", Value: decimal.NewFromInt(15),
			StartsAt: &lastMonth, EndsAt: &yesterday, MaxUsesPerUser: 1, Active: true,
		},
	}

	const q = `INSERT INTO promotions (
	id, name, code, description, type, value, applies_to_products, applies_to_categories,
	min_order_value, starts_at, ends_at, usage_limit, max_uses_per_user, active, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'seed')
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, description = EXCLUDED.description, type = EXCLUDED.type,
	value = EXCLUDED.value, applies_to_categories = EXCLUDED.applies_to_categories,
	min_order_value = EXCLUDED.min_order_value, starts_at = EXCLUDED.starts_at,
	ends_at = EXCLUDED.ends_at, usage_limit = EXCLUDED.usage_limit,
	max_uses_per_user = EXCLUDED.max_uses_per_user, active = EXCLUDED.active, updated_at = now()`

	batch := &pgx.Batch{}
	for _, p := range promos {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "promotion %s", p.Code)
		}
		batch.Queue(q,
			p.ID, p.Name, p.Code, p.Description, string(p.Type), p.Value,
			nonNil(p.AppliesToProducts), nonNil(p.AppliesToCategories),
			p.MinOrderValue, p.StartsAt, p.EndsAt, p.UsageLimit, p.MaxUsesPerUser, p.Active,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	for _, p := range promos {
		lg.Info("Upserted promotion", zap.String("code", p.Code), zap.String("type", string(p.Type)))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func printTokens(lg *zap.Logger, secret string) error {
	sec := handler.NewSecurityHandler([]byte(secret), "")
	for _, u := range demoUsers {
		tok, err := sec.Issue(u, 30*24*time.Hour)
		if err != nil {
			return err
		}
		lg.Info("Demo session token", zap.String("user", u.UserID), zap.Bool("admin", u.IsAdmin()), zap.String("token", tok))
	}
	return nil
}
