package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/checkout"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// Quoter prices a checkout request.
type Quoter interface {
	Checkout(ctx context.Context, req checkout.CheckoutRequest) (*checkout.Quote, error)
}

// ConfirmRequest holds the input for confirming an order.
type ConfirmRequest struct {
	UserID         string
	Items          []cart.Item
	AddressID      string
	PaymentMethod  string
	ShippingOption string
	PromoCode      string
}

// CodeInvalidator drops cached state for a promotion code.
type CodeInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator notifies inv after an order redeems a promotion, so cached
// usage counters do not outlive the redemption.
func WithInvalidator(inv CodeInvalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithMeterProvider sets the provider for the redemption counter. The global
// provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service encapsulates order confirmation business logic.
type Service struct {
	quotes        Quoter
	orders        Repository
	invalidator   CodeInvalidator
	meterProvider metric.MeterProvider
	redemptions   metric.Int64Counter
	now           func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(quotes Quoter, orders Repository, opts ...Option) *Service {
	s := &Service{
		quotes: quotes,
		orders: orders,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}

	counter, err := s.meterProvider.Meter("storefront/order").Int64Counter("order.promotion_redemptions",
		metric.WithDescription("Number of promotions redeemed by confirmed orders"),
	)
	if err != nil {
		counter = noop.Int64Counter{}
	}
	s.redemptions = counter
	return s
}

// Confirm prices the request exactly as a checkout quote would, then
// persists the order. A promotion is redeemed atomically with the order, so
// usage limits are only consumed here and never when quoting.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*Order, error) {
	q, err := s.quotes.Checkout(ctx, checkout.CheckoutRequest{
		UserID:         req.UserID,
		Items:          req.Items,
		AddressID:      req.AddressID,
		PaymentMethod:  req.PaymentMethod,
		ShippingOption: req.ShippingOption,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		return nil, fmt.Errorf("price order: %w", err)
	}

	now := s.now()
	o := &Order{
		ID:             uuid.New().String(),
		UserID:         q.UserID,
		AddressID:      q.AddressID,
		PaymentMethod:  q.PaymentMethod,
		ShippingOption: q.ShippingOption,
		Items:          q.Items,
		Totals:         q.Totals,
		CreatedAt:      now,
	}

	var redemption *promotion.Redemption
	if q.Promotion != nil {
		o.PromotionID = q.Promotion.ID
		o.PromoCode = q.Promotion.Code
		redemption = &promotion.Redemption{
			PromotionID: q.Promotion.ID,
			UserID:      q.UserID,
			OrderID:     o.ID,
			RedeemedAt:  now,
		}
	}

	if err := s.orders.Create(ctx, o, redemption); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if redemption != nil {
		s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("promo_code", o.PromoCode)))
		if s.invalidator != nil {
			s.invalidator.Invalidate(ctx, o.PromoCode)
		}
	}
	return o, nil
}
