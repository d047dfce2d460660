// Package checkout prices carts and explicit item lists against the catalog
// and layers promotions on top of the totals.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/product"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// DefaultPaymentMethod is used when a checkout request omits one.
const DefaultPaymentMethod = "COD"

// PromotionFinder looks promotions up by code.
type PromotionFinder interface {
	FindByCode(ctx context.Context, code string) (*promotion.Promotion, error)
}

// CheckoutRequest holds the input for a checkout quote.
type CheckoutRequest struct {
	UserID         string
	Items          []cart.Item
	AddressID      string
	PaymentMethod  string
	ShippingOption string
	PromoCode      string
}

// Quote is a priced checkout proposal. Nothing is persisted.
type Quote struct {
	UserID         string
	AddressID      string
	PaymentMethod  string
	ShippingOption string
	Items          []pricing.LineItem
	Totals         pricing.Totals
	Promotion      *promotion.Promotion
	FreeShipping   bool
}

// ApplyRequest holds the input for applying a promotion code.
type ApplyRequest struct {
	UserID    string
	PromoCode string
	CartID    string
	Items     []cart.Item
}

// Application is the outcome of applying a promotion to an item set.
type Application struct {
	Promotion    *promotion.Promotion
	Items        []promotion.Item
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool
}

// PriceRequest holds the input for unified order pricing.
type PriceRequest struct {
	Items          []cart.Item
	ShippingOption string
	PromoCode      string
}

// PricedOrder is the complete breakdown of an item set with an optional
// promotion applied.
type PricedOrder struct {
	Items        []pricing.LineItem
	Totals       pricing.Totals
	Promotion    *promotion.Promotion
	FreeShipping bool
}

// Options configures optional Service dependencies.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Service orchestrates checkout quotes and promotion application.
type Service struct {
	products   product.Repository
	carts      cart.Repository
	promotions PromotionFinder
	calc       *pricing.Calculator
	now        func() time.Time

	tracer     trace.Tracer
	quotes     metric.Int64Counter
	rejections metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	products product.Repository,
	carts cart.Repository,
	promotions PromotionFinder,
	calc *pricing.Calculator,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("storefront/checkout")
	quotes, err := meter.Int64Counter("checkout.quotes",
		metric.WithDescription("Number of priced quotes by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	rejections, err := meter.Int64Counter("checkout.promotion_rejections",
		metric.WithDescription("Number of promotion codes rejected by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}

	return &Service{
		products:   products,
		carts:      carts,
		promotions: promotions,
		calc:       calc,
		now:        time.Now,
		tracer:     opts.TracerProvider.Tracer("storefront/checkout"),
		quotes:     quotes,
		rejections: rejections,
	}, nil
}

// Checkout prices the explicit items, or the caller's active cart when none
// are given, and returns a quote.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer func() { endSpan(span, rerr) }()

	if req.UserID == "" {
		return nil, auth.ErrUnauthorized
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = DefaultPaymentMethod
	}
	if req.ShippingOption == "" {
		req.ShippingOption = pricing.ShippingStandard
	}

	items := req.Items
	if len(items) == 0 {
		c, err := s.activeCart(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		items = c.Items
	}

	priced, err := s.PriceOrder(ctx, PriceRequest{
		Items:          items,
		ShippingOption: req.ShippingOption,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		return nil, err
	}
	s.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "checkout")))

	return &Quote{
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		PaymentMethod:  req.PaymentMethod,
		ShippingOption: req.ShippingOption,
		Items:          priced.Items,
		Totals:         priced.Totals,
		Promotion:      priced.Promotion,
		FreeShipping:   priced.FreeShipping,
	}, nil
}

// Summary prices the caller's persisted cart without any promotion.
func (s *Service) Summary(ctx context.Context, userID, shippingOption string) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Summary")
	defer func() { endSpan(span, rerr) }()

	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	if shippingOption == "" {
		shippingOption = pricing.ShippingStandard
	}

	c, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines, err := s.priceItems(ctx, c.Items)
	if err != nil {
		return nil, err
	}
	s.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "summary")))

	return &Quote{
		UserID:         userID,
		ShippingOption: shippingOption,
		Items:          lines,
		Totals:         s.calc.ComputeTotals(lines, shippingOption),
	}, nil
}

// ApplyPromotion resolves a promotion code against explicit items or a cart
// owned by the caller. Explicit items take precedence over CartID.
func (s *Service) ApplyPromotion(ctx context.Context, req ApplyRequest) (_ *Application, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ApplyPromotion",
		trace.WithAttributes(attribute.String("promo.code", req.PromoCode)),
	)
	defer func() { endSpan(span, rerr) }()

	if req.PromoCode == "" {
		return nil, ErrPromoCodeRequired
	}

	promo, lines, err := s.load(ctx, req.PromoCode, func(ctx context.Context) ([]pricing.LineItem, error) {
		items, err := s.applyItems(ctx, req)
		if err != nil {
			return nil, err
		}
		return s.priceItems(ctx, items)
	})
	if err != nil {
		return nil, err
	}

	details := toPromotionItems(lines)
	res, err := promotion.Resolve(promo, details, s.now())
	if err != nil {
		s.reject(ctx, err)
		return nil, err
	}

	return &Application{
		Promotion:    promo,
		Items:        details,
		Subtotal:     res.Subtotal,
		Discount:     res.Discount,
		Total:        res.Total,
		FreeShipping: res.FreeShipping,
	}, nil
}

// PriceOrder is the single composition of subtotal, promotion discount,
// shipping and taxes. Without a promo code it equals ComputeTotals.
func (s *Service) PriceOrder(ctx context.Context, req PriceRequest) (_ *PricedOrder, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PriceOrder")
	defer func() { endSpan(span, rerr) }()

	if len(req.Items) == 0 {
		return nil, ErrNoItemsToCheckout
	}

	promo, lines, err := s.load(ctx, req.PromoCode, func(ctx context.Context) ([]pricing.LineItem, error) {
		return s.priceItems(ctx, req.Items)
	})
	if err != nil {
		return nil, err
	}

	if promo == nil {
		return &PricedOrder{
			Items:  lines,
			Totals: s.calc.ComputeTotals(lines, req.ShippingOption),
		}, nil
	}

	res, err := promotion.Resolve(promo, toPromotionItems(lines), s.now())
	if err != nil {
		s.reject(ctx, err)
		return nil, err
	}

	return &PricedOrder{
		Items:        lines,
		Totals:       s.calc.Compose(res.Subtotal, res.Discount, req.ShippingOption, res.FreeShipping),
		Promotion:    promo,
		FreeShipping: res.FreeShipping,
	}, nil
}

// load runs the promotion lookup and the item pricing concurrently. Both
// reads always complete so that promotion errors take precedence over item
// errors regardless of timing.
func (s *Service) load(
	ctx context.Context,
	code string,
	items func(ctx context.Context) ([]pricing.LineItem, error),
) (*promotion.Promotion, []pricing.LineItem, error) {
	var (
		promo    *promotion.Promotion
		promoErr error
		lines    []pricing.LineItem
		itemsErr error
		g        errgroup.Group
	)
	if code != "" {
		g.Go(func() error {
			promo, promoErr = s.findPromotion(ctx, code)
			return nil
		})
	}
	g.Go(func() error {
		lines, itemsErr = items(ctx)
		return nil
	})
	_ = g.Wait()

	if promoErr != nil {
		s.reject(ctx, promoErr)
		return nil, nil, promoErr
	}
	if promo != nil && !promo.IsActive(s.now()) {
		s.reject(ctx, promotion.ErrInvalidOrExpired)
		return nil, nil, promotion.ErrInvalidOrExpired
	}
	if itemsErr != nil {
		return nil, nil, itemsErr
	}
	return promo, lines, nil
}

func (s *Service) findPromotion(ctx context.Context, code string) (*promotion.Promotion, error) {
	p, err := s.promotions.FindByCode(ctx, code)
	switch {
	case errors.Is(err, promotion.ErrNotFound):
		return nil, promotion.ErrNotFound
	case err != nil:
		return nil, &LookupError{Source: SourcePromotion, Err: err}
	case p == nil:
		return nil, promotion.ErrNotFound
	}
	return p, nil
}

func (s *Service) activeCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := s.carts.FindActiveCart(ctx, userID)
	if err != nil && !errors.Is(err, cart.ErrNotFound) {
		return nil, &LookupError{Source: SourceCart, Err: err}
	}
	if c == nil || c.IsEmpty() {
		return nil, ErrNoItemsToCheckout
	}
	return c, nil
}

func (s *Service) applyItems(ctx context.Context, req ApplyRequest) ([]cart.Item, error) {
	if len(req.Items) > 0 {
		return req.Items, nil
	}
	if req.CartID == "" {
		return nil, ErrNoItemsToCheckout
	}

	c, err := s.carts.FindByID(ctx, req.CartID)
	switch {
	case errors.Is(err, cart.ErrNotFound):
		return nil, ErrCartNotFound
	case err != nil:
		return nil, &LookupError{Source: SourceCart, Err: err}
	case c == nil || c.UserID != req.UserID:
		return nil, ErrCartNotFound
	case c.IsEmpty():
		return nil, ErrNoItemsToCheckout
	}
	return c.Items, nil
}

// priceItems validates quantities, fetches all products in one batch and
// builds catalog-priced line items in request order.
func (s *Service) priceItems(ctx context.Context, items []cart.Item) ([]pricing.LineItem, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, &LookupError{Source: SourceCatalog, Err: err}
	}
	byID := product.Index(fetched)

	lines := make([]pricing.LineItem, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		lines[i] = pricing.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
		}
	}
	return lines, nil
}

func (s *Service) reject(ctx context.Context, err error) {
	reason := "other"
	var minErr *promotion.BelowMinimumOrderError
	switch {
	case errors.Is(err, promotion.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, promotion.ErrInvalidOrExpired):
		reason = "invalid_or_expired"
	case errors.As(err, &minErr):
		reason = "below_minimum"
	}
	s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func toPromotionItems(lines []pricing.LineItem) []promotion.Item {
	out := make([]promotion.Item, len(lines))
	for i, li := range lines {
		out[i] = promotion.NewItem(li.ProductID, li.Name, li.Category, li.UnitPrice, li.Quantity)
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
