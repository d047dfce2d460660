package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the catalog view the pricing engine needs. Price is the
// authoritative unit price; client supplied prices are never used.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
}

// Repository is the catalog lookup. Missing IDs are silently omitted from the
// result; detecting them is the caller's responsibility.
type Repository interface {
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Index maps products by ID for O(1) lookup while re-pricing line items.
func Index(products []Product) map[string]Product {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}
