// Package breaker guards catalog lookups with a circuit breaker so a failing
// catalog store degrades into fast transient errors.
package breaker

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/product"
)

// Config controls when the breaker trips and how it recovers.
type Config struct {
	MaxRequests  uint32        `default:"3"   usage:"Requests allowed through while half-open"`
	Interval     time.Duration `default:"15s" usage:"Window after which closed-state counts reset"`
	Timeout      time.Duration `default:"30s" usage:"Time spent open before probing again"`
	MinRequests  uint32        `default:"5"   usage:"Requests in window before the failure ratio is considered"`
	FailureRatio float64       `default:"0.6" usage:"Failure ratio that trips the breaker"`
}

var _ product.Repository = (*Catalog)(nil)

// Catalog wraps a product.Repository with a circuit breaker.
type Catalog struct {
	next product.Repository
	cb   *gobreaker.CircuitBreaker[[]product.Product]
}

// NewCatalog wraps next. State transitions are logged with lg.
func NewCatalog(next product.Repository, cfg Config, lg *zap.Logger) *Catalog {
	cb := gobreaker.NewCircuitBreaker[[]product.Product](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("circuit", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: func(err error) bool {
			// Callers giving up is not a catalog failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Catalog{next: next, cb: cb}
}

// FindByIDs delegates to the wrapped repository unless the circuit is open.
func (c *Catalog) FindByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	products, err := c.cb.Execute(func() ([]product.Product, error) {
		return c.next.FindByIDs(ctx, ids)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(err, "catalog unavailable")
	}
	return products, err
}

// State returns the current breaker state.
func (c *Catalog) State() gobreaker.State {
	return c.cb.State()
}

// Check reports an error while the circuit is open. It is suitable as a
// readiness check.
func (c *Catalog) Check(context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return errors.New("catalog circuit open")
	}
	return nil
}
