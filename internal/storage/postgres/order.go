package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const (
	// redeemPromotionSQL is a compare-and-increment: the row is only updated
	// while the promotion is still redeemable, and the row lock it takes
	// serializes concurrent redemptions of the same promotion.
	redeemPromotionSQL = `UPDATE promotions SET used_count = used_count + 1
		WHERE id = $1
			AND active = TRUE
			AND (usage_limit = 0 OR used_count < usage_limit)
			AND (starts_at IS NULL OR starts_at <= $2)
			AND (ends_at IS NULL OR ends_at >= $2)
		RETURNING max_uses_per_user`

	countUserRedemptionsSQL = `SELECT COUNT(*) FROM promotion_redemptions
		WHERE promotion_id = $1 AND user_id = $2`

	createOrderSQL = `INSERT INTO orders (id, user_id, address_id, payment_method, shipping_option,
		items, subtotal, shipping, taxes, discount, total, promotion_id, promo_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	createRedemptionSQL = `INSERT INTO promotion_redemptions (promotion_id, user_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and, when redemption is set, consumes one use
// of the promotion in the same transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, redemption *promotion.Redemption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if redemption != nil {
		if err := redeem(ctx, tx, redemption); err != nil {
			return err
		}
	}

	var promotionID *string
	if o.PromotionID != "" {
		promotionID = &o.PromotionID
	}
	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.AddressID, o.PaymentMethod, o.ShippingOption,
		encodeOrderItems(o.Items),
		o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Taxes, o.Totals.Discount, o.Totals.Total,
		promotionID, o.PromoCode, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	if redemption != nil {
		_, err = tx.Exec(ctx, createRedemptionSQL,
			redemption.PromotionID, redemption.UserID, redemption.OrderID, redemption.RedeemedAt,
		)
		if err != nil {
			return fmt.Errorf("recording redemption: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

func redeem(ctx context.Context, tx pgx.Tx, rd *promotion.Redemption) error {
	var maxPerUser int
	err := tx.QueryRow(ctx, redeemPromotionSQL, rd.PromotionID, rd.RedeemedAt).Scan(&maxPerUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.ErrInvalidOrExpired
		}
		return fmt.Errorf("redeeming promotion %q: %w", rd.PromotionID, err)
	}

	if maxPerUser == 0 {
		return nil
	}

	var used int
	if err := tx.QueryRow(ctx, countUserRedemptionsSQL, rd.PromotionID, rd.UserID).Scan(&used); err != nil {
		return fmt.Errorf("counting redemptions: %w", err)
	}
	if used >= maxPerUser {
		return promotion.ErrPerUserLimitReached
	}
	return nil
}

// encodeOrderItems renders the priced line items for the JSONB column.
func encodeOrderItems(items []pricing.LineItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
			e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
			e.Field("category", func(e *jx.Encoder) { e.Str(it.Category) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			e.Field("price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
		})
	}
	e.ArrEnd()
	return e.Bytes()
}
