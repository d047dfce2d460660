package promotion

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(id, category, price string, qty int) Item {
	return NewItem(id, "Product "+id, category, d(price), qty)
}

func TestResolve(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	twoHundred := []Item{item("p1", "shoes", "100", 2)}

	tests := []struct {
		name             string
		promo            *Promotion
		items            []Item
		wantDiscount     string
		wantTotal        string
		wantFreeShipping bool
		wantErr          error
		wantBelowMin     bool
	}{
		{
			name:    "missing promotion",
			promo:   nil,
			items:   twoHundred,
			wantErr: ErrNotFound,
		},
		{
			name:         "percent unrestricted",
			promo:        &Promotion{Code: "TEN", Type: TypePercent, Value: d("10"), Active: true},
			items:        twoHundred,
			wantDiscount: "20",
			wantTotal:    "180",
		},
		{
			name:         "percent 100 yields zero total",
			promo:        &Promotion{Code: "ALL", Type: TypePercent, Value: d("100"), Active: true},
			items:        twoHundred,
			wantDiscount: "200",
			wantTotal:    "0",
		},
		{
			name:         "fixed larger than subtotal clamps to subtotal",
			promo:        &Promotion{Code: "BIG", Type: TypeFixed, Value: d("500"), Active: true},
			items:        twoHundred,
			wantDiscount: "200",
			wantTotal:    "0",
		},
		{
			name:         "fixed below subtotal",
			promo:        &Promotion{Code: "FIVE", Type: TypeFixed, Value: d("5"), Active: true},
			items:        twoHundred,
			wantDiscount: "5",
			wantTotal:    "195",
		},
		{
			name:             "free shipping leaves subtotal alone",
			promo:            &Promotion{Code: "SHIP", Type: TypeFreeShipping, Value: d("99"), Active: true},
			items:            twoHundred,
			wantDiscount:     "0",
			wantTotal:        "200",
			wantFreeShipping: true,
		},
		{
			name: "product restricted on non-matching order",
			promo: &Promotion{
				Code: "P9", Type: TypePercent, Value: d("50"), Active: true,
				AppliesToProducts: []string{"p9"},
			},
			items:        twoHundred,
			wantDiscount: "0",
			wantTotal:    "200",
		},
		{
			name: "product restricted applies only to matching lines",
			promo: &Promotion{
				Code: "P2", Type: TypePercent, Value: d("50"), Active: true,
				AppliesToProducts: []string{"p2"},
			},
			items: []Item{
				item("p1", "shoes", "100", 1),
				item("p2", "hats", "40", 2),
			},
			wantDiscount: "40",
			wantTotal:    "140",
		},
		{
			name: "category restricted matches by catalog category",
			promo: &Promotion{
				Code: "HATS", Type: TypePercent, Value: d("25"), Active: true,
				AppliesToCategories: []string{"hats"},
			},
			items: []Item{
				item("p1", "shoes", "100", 1),
				item("p2", "hats", "40", 1),
			},
			wantDiscount: "10",
			wantTotal:    "130",
		},
		{
			name: "line matched by product and category counted once",
			promo: &Promotion{
				Code: "BOTH", Type: TypePercent, Value: d("10"), Active: true,
				AppliesToProducts:   []string{"p2"},
				AppliesToCategories: []string{"hats"},
			},
			items:        []Item{item("p2", "hats", "40", 1)},
			wantDiscount: "4",
			wantTotal:    "36",
		},
		{
			name:    "inactive flag",
			promo:   &Promotion{Code: "OFF", Type: TypePercent, Value: d("10"), Active: false},
			items:   twoHundred,
			wantErr: ErrInvalidOrExpired,
		},
		{
			name:    "past end date rejected even when active",
			promo:   &Promotion{Code: "OLD", Type: TypePercent, Value: d("10"), Active: true, EndsAt: &pastTime},
			items:   twoHundred,
			wantErr: ErrInvalidOrExpired,
		},
		{
			name:    "not started yet",
			promo:   &Promotion{Code: "SOON", Type: TypePercent, Value: d("10"), Active: true, StartsAt: &futureTime},
			items:   twoHundred,
			wantErr: ErrInvalidOrExpired,
		},
		{
			name: "within window",
			promo: &Promotion{
				Code: "NOW", Type: TypeFixed, Value: d("10"), Active: true,
				StartsAt: &pastTime, EndsAt: &futureTime,
			},
			items:        twoHundred,
			wantDiscount: "10",
			wantTotal:    "190",
		},
		{
			name: "global usage cap reached",
			promo: &Promotion{
				Code: "CAP", Type: TypeFixed, Value: d("10"), Active: true,
				UsageLimit: 3, UsedCount: 3,
			},
			items:   twoHundred,
			wantErr: ErrInvalidOrExpired,
		},
		{
			name: "below minimum order value",
			promo: &Promotion{
				Code: "MIN", Type: TypeFixed, Value: d("10"), Active: true,
				MinOrderValue: d("250"),
			},
			items:        twoHundred,
			wantBelowMin: true,
		},
		{
			name: "exactly minimum order value",
			promo: &Promotion{
				Code: "MIN", Type: TypeFixed, Value: d("10"), Active: true,
				MinOrderValue: d("200"),
			},
			items:        twoHundred,
			wantDiscount: "10",
			wantTotal:    "190",
		},
		{
			name:         "percent rounds to cents",
			promo:        &Promotion{Code: "ODD", Type: TypePercent, Value: d("15"), Active: true},
			items:        []Item{item("p1", "", "9.99", 1)},
			wantDiscount: "1.50",
			wantTotal:    "8.49",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.promo, tt.items, fixedNow)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantBelowMin {
				var minErr *BelowMinimumOrderError
				require.ErrorAs(t, err, &minErr)
				assert.True(t, tt.promo.MinOrderValue.Equal(minErr.MinOrderValue))
				return
			}
			require.NoError(t, err)

			assert.True(t, d(tt.wantDiscount).Equal(got.Discount),
				"discount: expected %s, got %s", tt.wantDiscount, got.Discount)
			assert.True(t, d(tt.wantTotal).Equal(got.Total),
				"total: expected %s, got %s", tt.wantTotal, got.Total)
			assert.Equal(t, tt.wantFreeShipping, got.FreeShipping)
			assert.False(t, got.Total.IsNegative())
			assert.True(t, Subtotal(tt.items).Equal(got.Subtotal))
		})
	}
}

func TestResolve_EndBoundaryInclusive(t *testing.T) {
	end := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	p := &Promotion{Code: "EDGE", Type: TypeFixed, Value: d("1"), Active: true, EndsAt: &end}

	_, err := Resolve(p, []Item{item("p1", "", "10", 1)}, end)
	require.NoError(t, err)

	_, err = Resolve(p, []Item{item("p1", "", "10", 1)}, end.Add(time.Nanosecond))
	require.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(&Promotion{Type: "bogo"}, []Item{item("p1", "", "10", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported promotion type")
}

func TestApply_NeverNegative(t *testing.T) {
	items := []Item{item("p1", "", "0.01", 1)}
	for _, p := range []*Promotion{
		{Type: TypePercent, Value: d("100")},
		{Type: TypeFixed, Value: d("1000000")},
		{Type: TypeFreeShipping},
	} {
		got, err := Apply(p, items)
		require.NoError(t, err)
		assert.False(t, got.Total.IsNegative(), "type %s", p.Type)
		assert.False(t, got.Discount.IsNegative(), "type %s", p.Type)
	}
}

func TestPromotion_Validate(t *testing.T) {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name      string
		promo     Promotion
		wantField string
	}{
		{name: "valid", promo: Promotion{Code: "OK", Name: "ok", Type: TypeFixed, Value: d("5")}},
		{name: "missing code", promo: Promotion{Name: "x", Type: TypeFixed}, wantField: "code"},
		{name: "missing name", promo: Promotion{Code: "X", Type: TypeFixed}, wantField: "name"},
		{name: "unknown type", promo: Promotion{Code: "X", Name: "x", Type: "bogo"}, wantField: "type"},
		{name: "negative value", promo: Promotion{Code: "X", Name: "x", Type: TypeFixed, Value: d("-1")}, wantField: "value"},
		{name: "percent over 100", promo: Promotion{Code: "X", Name: "x", Type: TypePercent, Value: d("101")}, wantField: "value"},
		{name: "negative usage limit", promo: Promotion{Code: "X", Name: "x", Type: TypeFixed, UsageLimit: -1}, wantField: "usageLimit"},
		{
			name:      "end before start",
			promo:     Promotion{Code: "X", Name: "x", Type: TypeFixed, StartsAt: &start, EndsAt: &end},
			wantField: "endsAt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.promo.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
