package order

import (
	"context"
	"time"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// Order is a confirmed, priced customer order.
type Order struct {
	ID             string
	UserID         string
	AddressID      string
	PaymentMethod  string
	ShippingOption string
	Items          []pricing.LineItem
	Totals         pricing.Totals
	PromotionID    string
	PromoCode      string
	CreatedAt      time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order. When redemption is non-nil the promotion usage
	// counter is incremented and the redemption recorded in the same
	// transaction; it fails with promotion.ErrInvalidOrExpired when the
	// promotion is no longer redeemable and promotion.ErrPerUserLimitReached
	// when the user has exhausted their uses.
	Create(ctx context.Context, order *Order, redemption *promotion.Redemption) error
}
