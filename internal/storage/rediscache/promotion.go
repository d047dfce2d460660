// Package rediscache provides a Redis read-through cache for promotion
// lookups by code.
package rediscache

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// Config controls the promotion cache.
type Config struct {
	Addr     string        `default:"" usage:"Redis address; empty disables the promotion cache"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"30s" usage:"Promotion cache entry lifetime"`
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

var _ promotion.Repository = (*Promotions)(nil)

// Promotions wraps a promotion.Repository and caches FindByCode results.
// Writes go to the wrapped repository and invalidate the affected codes.
//
// Cached entries may lag behind used_count; usage caps are enforced again
// when an order redeems the promotion.
type Promotions struct {
	next   promotion.Repository
	client redis.UniversalClient
	ttl    time.Duration
	lg     *zap.Logger
	sfg    singleflight.Group
}

// NewPromotions creates a caching promotion repository.
func NewPromotions(next promotion.Repository, client redis.UniversalClient, ttl time.Duration, lg *zap.Logger) *Promotions {
	return &Promotions{
		next:   next,
		client: client,
		ttl:    ttl,
		lg:     lg,
	}
}

func cacheKey(code string) string {
	return "promotion:code:" + strings.ToLower(strings.TrimSpace(code))
}

// FindByCode returns the cached promotion or loads it from the wrapped
// repository. Concurrent misses for the same code share one load.
func (c *Promotions) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	key := cacheKey(code)

	v, err, _ := c.sfg.Do(key, func() (any, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			p, decErr := decodePromotion(data)
			if decErr == nil {
				return p, nil
			}
			c.lg.Warn("Discarding corrupt cache entry", zap.String("key", key), zap.Error(decErr))
		case !errors.Is(err, redis.Nil):
			c.lg.Warn("Promotion cache get failed", zap.String("key", key), zap.Error(err))
		}

		p, err := c.next.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}

		if err := c.client.Set(ctx, key, encodePromotion(p), c.ttl).Err(); err != nil {
			c.lg.Warn("Promotion cache set failed", zap.String("key", key), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers may mutate the result.
	cp := *v.(*promotion.Promotion)
	return &cp, nil
}

// FindByID is not cached.
func (c *Promotions) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return c.next.FindByID(ctx, id)
}

// List is not cached.
func (c *Promotions) List(ctx context.Context, activeAt *time.Time) ([]promotion.Promotion, error) {
	return c.next.List(ctx, activeAt)
}

// Create stores p and drops any cached entry for its code.
func (c *Promotions) Create(ctx context.Context, p *promotion.Promotion) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.Code)
	return nil
}

// Update stores p and drops cached entries for both its previous and new
// codes.
func (c *Promotions) Update(ctx context.Context, p *promotion.Promotion) error {
	prev, err := c.next.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := c.next.Update(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, prev.Code, p.Code)
	return nil
}

// Delete removes the promotion and its cached entry.
func (c *Promotions) Delete(ctx context.Context, id string) error {
	prev, err := c.next.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, prev.Code)
	return nil
}

// Invalidate drops the cached entry for code. Order confirmation calls it
// after a redemption changes the usage counter.
func (c *Promotions) Invalidate(ctx context.Context, code string) {
	c.invalidate(ctx, code)
}

func (c *Promotions) invalidate(ctx context.Context, codes ...string) {
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = cacheKey(code)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.lg.Warn("Promotion cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
