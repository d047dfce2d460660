package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/checkout"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const maxBodySize = 1 << 20

// readBody returns the request body, or "{}" when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}

// decodeObject walks a JSON object, wrapping decode failures as 400s.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// orderBody is the shared shape of checkout and order confirmation bodies.
type orderBody struct {
	Items          []cart.Item
	AddressID      string
	PaymentMethod  string
	ShippingOption string
	PromoCode      string
}

func decodeOrderBody(data []byte) (orderBody, error) {
	var b orderBody
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			b.Items, err = decodeItems(d)
		case "addressId":
			b.AddressID, err = optStr(d)
		case "paymentMethod":
			b.PaymentMethod, err = optStr(d)
		case "shippingOption":
			b.ShippingOption, err = optStr(d)
		case "promoCode":
			b.PromoCode, err = optStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "%q", key)
	})
	return b, err
}

type applyBody struct {
	PromoCode string
	CartID    string
	Items     []cart.Item
}

func decodeApplyBody(data []byte) (applyBody, error) {
	var b applyBody
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "promoCode":
			b.PromoCode, err = optStr(d)
		case "cartId":
			b.CartID, err = optStr(d)
		case "items":
			b.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "%q", key)
	})
	return b, err
}

// decodeItems reads [{productId, quantity}]. Any client supplied price or
// name is skipped; the catalog is the only price source.
func decodeItems(d *jx.Decoder) ([]cart.Item, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []cart.Item
	err := d.Arr(func(d *jx.Decoder) error {
		var it cart.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				it.ProductID, err = d.Str()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return errors.Wrapf(err, "%q", key)
		}); err != nil {
			return err
		}
		if it.ProductID == "" {
			return errors.New("productId is required")
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodePromotionFields(data []byte) (promotion.Fields, error) {
	var f promotion.Fields
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "name":
			f.Name, err = strPtr(d)
		case "code":
			f.Code, err = strPtr(d)
		case "description":
			f.Description, err = strPtr(d)
		case "type":
			var s string
			if s, err = d.Str(); err == nil {
				t := promotion.Type(s)
				f.Type = &t
			}
		case "value":
			f.Value, err = decimalPtr(d)
		case "minOrderValue":
			f.MinOrderValue, err = decimalPtr(d)
		case "appliesToProducts":
			f.AppliesToProducts, err = stringsPtr(d)
		case "appliesToCategories":
			f.AppliesToCategories, err = stringsPtr(d)
		case "startsAt":
			f.StartsAt, err = timePtr(d)
		case "endsAt":
			f.EndsAt, err = timePtr(d)
		case "usageLimit":
			f.UsageLimit, err = intPtr(d)
		case "maxUsesPerUser":
			f.MaxUsesPerUser, err = intPtr(d)
		case "active":
			var v bool
			if v, err = d.Bool(); err == nil {
				f.Active = &v
			}
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "%q", key)
	})
	return f, err
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func strPtr(d *jx.Decoder) (*string, error) {
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func intPtr(d *jx.Decoder) (*int, error) {
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func stringsPtr(d *jx.Decoder) (*[]string, error) {
	out := []string{}
	if err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// decimalPtr accepts both JSON numbers and numeric strings.
func decimalPtr(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	default:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func timePtr(d *jx.Decoder) (*time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Money is written as a JSON number with the decimal's exact digits.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.String())
}

func encodeLineItems(e *jx.Encoder, items []pricing.LineItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
				if it.Category != "" {
					e.Field("category", func(e *jx.Encoder) { e.Str(it.Category) })
				}
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
			})
		}
	})
}

// encodeSummary writes the totals breakdown. The discount line is omitted
// when nothing was discounted and no promotion was used.
func encodeSummary(e *jx.Encoder, t pricing.Totals, promoUsed bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, t.Subtotal) })
		e.Field("shipping", func(e *jx.Encoder) { encodeMoney(e, t.Shipping) })
		e.Field("taxes", func(e *jx.Encoder) { encodeMoney(e, t.Taxes) })
		if promoUsed || !t.Discount.IsZero() {
			e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, t.Discount) })
		}
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, t.Total) })
	})
}

func encodeQuote(e *jx.Encoder, q *checkout.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("userId", func(e *jx.Encoder) { e.Str(q.UserID) })
		e.Field("addressId", func(e *jx.Encoder) { e.Str(q.AddressID) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(q.PaymentMethod) })
		e.Field("shippingOption", func(e *jx.Encoder) { e.Str(q.ShippingOption) })
		e.Field("items", func(e *jx.Encoder) { encodeLineItems(e, q.Items) })
		e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, q.Totals, q.Promotion != nil) })
		if q.Promotion != nil {
			e.Field("promoCode", func(e *jx.Encoder) { e.Str(q.Promotion.Code) })
		}
		if q.FreeShipping {
			e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(true) })
		}
	})
}

func encodeCartSummary(e *jx.Encoder, q *checkout.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) { encodeLineItems(e, q.Items) })
		e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, q.Totals, false) })
	})
}

func encodeApplication(e *jx.Encoder, a *checkout.Application) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("promotion", func(e *jx.Encoder) { encodePromotion(e, a.Promotion) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range a.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
						e.Field("line", func(e *jx.Encoder) { encodeMoney(e, it.Line) })
					})
				}
			})
		})
		e.Field("totals", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, a.Subtotal) })
				e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, a.Discount) })
				e.Field("total", func(e *jx.Encoder) { encodeMoney(e, a.Total) })
			})
		})
		if a.FreeShipping {
			e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(true) })
		}
	})
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
		if p.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		}
		e.Field("type", func(e *jx.Encoder) { e.Str(string(p.Type)) })
		e.Field("value", func(e *jx.Encoder) { encodeMoney(e, p.Value) })
		e.Field("appliesToProducts", func(e *jx.Encoder) { encodeStrings(e, p.AppliesToProducts) })
		e.Field("appliesToCategories", func(e *jx.Encoder) { encodeStrings(e, p.AppliesToCategories) })
		e.Field("minOrderValue", func(e *jx.Encoder) { encodeMoney(e, p.MinOrderValue) })
		if p.StartsAt != nil {
			e.Field("startsAt", func(e *jx.Encoder) { encodeTime(e, *p.StartsAt) })
		}
		if p.EndsAt != nil {
			e.Field("endsAt", func(e *jx.Encoder) { encodeTime(e, *p.EndsAt) })
		}
		e.Field("usageLimit", func(e *jx.Encoder) { e.Int(p.UsageLimit) })
		e.Field("usedCount", func(e *jx.Encoder) { e.Int(p.UsedCount) })
		e.Field("maxUsesPerUser", func(e *jx.Encoder) { e.Int(p.MaxUsesPerUser) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
		if p.CreatedBy != "" {
			e.Field("createdBy", func(e *jx.Encoder) { e.Str(p.CreatedBy) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("addressId", func(e *jx.Encoder) { e.Str(o.AddressID) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("shippingOption", func(e *jx.Encoder) { e.Str(o.ShippingOption) })
		e.Field("items", func(e *jx.Encoder) { encodeLineItems(e, o.Items) })
		e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, o.Totals, o.PromotionID != "") })
		if o.PromoCode != "" {
			e.Field("promoCode", func(e *jx.Encoder) { e.Str(o.PromoCode) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}

func encodeStrings(e *jx.Encoder, s []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, v := range s {
			e.Str(v)
		}
	})
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

// writeJSON writes the encoder's buffer with the given status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
