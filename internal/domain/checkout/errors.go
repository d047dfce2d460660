package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for request shape and item resolution.
var (
	ErrNoItemsToCheckout = errors.New("no items to checkout")
	ErrPromoCodeRequired = errors.New("promoCode is required")
	ErrCartNotFound      = errors.New("cart not found")
)

// ProductNotFoundError indicates a requested product does not exist in the
// catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Source names the collaborator a lookup failed against.
type Source string

const (
	SourceCatalog   Source = "catalog"
	SourceCart      Source = "cart"
	SourcePromotion Source = "promotion"
)

// LookupError wraps a transient failure reading from a collaborator. It is
// never used for "entity does not exist" outcomes.
type LookupError struct {
	Source Source
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup: %v", e.Source, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
