package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a cart does not exist or is not visible to the
// requesting user.
var ErrNotFound = errors.New("cart not found")

// Cart is a persisted shopping cart snapshot.
type Cart struct {
	ID     string
	UserID string
	Items  []Item
}

// Item is a product/quantity pair stored in a cart. Carts never store prices.
type Item struct {
	ProductID string
	Quantity  int
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Repository resolves persisted carts.
type Repository interface {
	// FindActiveCart returns the user's current cart, or (nil, nil) when the
	// user has none.
	FindActiveCart(ctx context.Context, userID string) (*Cart, error)
	// FindByID returns the cart with the given ID or ErrNotFound.
	FindByID(ctx context.Context, cartID string) (*Cart, error)
}
