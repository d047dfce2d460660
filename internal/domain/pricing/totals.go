// Package pricing computes order totals from catalog-priced line items.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Shipping option keys known to the default rate table.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
)

// LineItem is one catalog-priced product/quantity pair. UnitPrice always
// comes from the catalog.
type LineItem struct {
	ProductID string
	Name      string
	Category  string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns UnitPrice × Quantity.
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Totals is the monetary breakdown of an order.
//
// Total = Subtotal + Shipping + Taxes - Discount and is never negative.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Taxes    decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ShippingRates maps shipping option keys to flat rates.
type ShippingRates map[string]decimal.Decimal

// Rate returns the rate for option, falling back to the standard rate for
// unknown keys.
func (r ShippingRates) Rate(option string) decimal.Decimal {
	if rate, ok := r[option]; ok {
		return rate
	}
	return r[ShippingStandard]
}

// DefaultShippingRates returns the stock rate table.
func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		ShippingStandard: decimal.NewFromInt(50),
		ShippingExpress:  decimal.NewFromInt(120),
	}
}

// DefaultTaxRate is the flat 5% tax rate.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Calculator is the totals calculator. It holds only immutable configuration
// and is safe for concurrent use.
type Calculator struct {
	rates   ShippingRates
	taxRate decimal.Decimal
}

// NewCalculator creates a Calculator. A nil rate table uses the defaults.
func NewCalculator(rates ShippingRates, taxRate decimal.Decimal) *Calculator {
	if rates == nil {
		rates = DefaultShippingRates()
	}
	return &Calculator{rates: rates, taxRate: taxRate}
}

// TaxRate returns the configured flat tax rate.
func (c *Calculator) TaxRate() decimal.Decimal { return c.taxRate }

// ShippingRate returns the rate charged for the given option.
func (c *Calculator) ShippingRate(option string) decimal.Decimal {
	return c.rates.Rate(option)
}

// ComputeTotals prices items for the given shipping option without any
// discount. An empty item list yields a zero subtotal.
func (c *Calculator) ComputeTotals(items []LineItem, shippingOption string) Totals {
	return c.Compose(Subtotal(items), decimal.Zero, shippingOption, false)
}

// Compose combines subtotal, discount, shipping and taxes exactly once.
// Taxes are charged on the pre-discount subtotal. The discount is clamped to
// [0, subtotal] so the total can never go negative, and freeShipping zeroes
// the shipping line.
func (c *Calculator) Compose(subtotal, discount decimal.Decimal, shippingOption string, freeShipping bool) Totals {
	discount = clamp(discount, decimal.Zero, subtotal).Round(2)

	shipping := c.rates.Rate(shippingOption)
	if freeShipping {
		shipping = decimal.Zero
	}
	taxes := subtotal.Mul(c.taxRate).Round(2)

	total := subtotal.Sub(discount).Add(shipping).Add(taxes)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Taxes:    taxes,
		Discount: discount,
		Total:    total,
	}
}

// Subtotal returns Σ UnitPrice × Quantity over items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount())
	}
	return sum
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
