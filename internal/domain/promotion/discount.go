package promotion

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Item is a catalog-priced line used for discount attribution.
type Item struct {
	ProductID string
	Name      string
	Category  string
	Quantity  int
	Price     decimal.Decimal
	Line      decimal.Decimal
}

// NewItem builds an Item and computes its line amount.
func NewItem(productID, name, category string, price decimal.Decimal, quantity int) Item {
	return Item{
		ProductID: productID,
		Name:      name,
		Category:  category,
		Quantity:  quantity,
		Price:     price,
		Line:      price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Resolution is the outcome of applying a promotion to an item set.
type Resolution struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool
}

// Apply computes the discount for p over items without running the
// eligibility gate. The three promotion types are mutually exclusive.
func Apply(p *Promotion, items []Item) (Resolution, error) {
	subtotal := Subtotal(items)

	var res Resolution
	switch p.Type {
	case TypePercent:
		res = applyPercent(p, items, subtotal)
	case TypeFixed:
		res = applyFixed(p, subtotal)
	case TypeFreeShipping:
		return Resolution{
			Subtotal:     subtotal,
			Discount:     zero,
			Total:        subtotal,
			FreeShipping: true,
		}, nil
	default:
		return Resolution{}, errors.Errorf("unsupported promotion type: %q", p.Type)
	}

	res.Subtotal = subtotal
	res.Total = floorAtZero(subtotal.Sub(res.Discount))
	return res, nil
}

func applyPercent(p *Promotion, items []Item, subtotal decimal.Decimal) Resolution {
	base := subtotal
	if p.Restricted() {
		base = applicableAmount(p, items)
	}

	amount := base.Mul(p.Value).Div(hundred)
	amount = decimal.Min(floorAtZero(amount), base).Round(2)

	return Resolution{Discount: amount}
}

func applyFixed(p *Promotion, subtotal decimal.Decimal) Resolution {
	amount := decimal.Min(p.Value, subtotal)
	return Resolution{Discount: floorAtZero(amount).Round(2)}
}

// applicableAmount sums line amounts of items matching the promotion's
// product or category restriction.
func applicableAmount(p *Promotion, items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		if appliesTo(p, item) {
			sum = sum.Add(item.Line)
		}
	}
	return sum
}

func appliesTo(p *Promotion, item Item) bool {
	if slices.Contains(p.AppliesToProducts, item.ProductID) {
		return true
	}
	return item.Category != "" && slices.Contains(p.AppliesToCategories, item.Category)
}

// Subtotal returns the sum of line amounts.
func Subtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(item.Line)
	}
	return sum
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
