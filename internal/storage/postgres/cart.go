package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
)

const (
	getActiveCartSQL = `SELECT id, user_id FROM carts
		WHERE user_id = $1 AND active = TRUE
		ORDER BY updated_at DESC LIMIT 1`

	getCartByIDSQL = `SELECT id, user_id FROM carts WHERE id = $1`

	getCartItemsSQL = `SELECT product_id, quantity FROM cart_items
		WHERE cart_id = $1 ORDER BY position, product_id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindActiveCart returns the most recently updated active cart of the user,
// or nil when the user has none.
func (r *CartRepository) FindActiveCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := r.findOne(ctx, getActiveCartSQL, userID)
	if errors.Is(err, cart.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active cart for user %q: %w", userID, err)
	}
	return c, nil
}

// FindByID returns the cart with the given ID or cart.ErrNotFound.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (*cart.Cart, error) {
	c, err := r.findOne(ctx, getCartByIDSQL, cartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("finding cart %q: %w", cartID, err)
	}
	return c, nil
}

func (r *CartRepository) findOne(ctx context.Context, query string, arg string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (cart.Cart, error) {
		var c cart.Cart
		err := row.Scan(&c.ID, &c.UserID)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, err
	}

	rows, err = r.pool.Query(ctx, getCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning cart items: %w", err)
	}
	return &c, nil
}
