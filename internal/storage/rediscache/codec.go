package rediscache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

func encodePromotion(p *promotion.Promotion) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(p.Type)) })
		e.Field("value", func(e *jx.Encoder) { e.Str(p.Value.String()) })
		e.Field("appliesToProducts", func(e *jx.Encoder) { encodeStrings(e, p.AppliesToProducts) })
		e.Field("appliesToCategories", func(e *jx.Encoder) { encodeStrings(e, p.AppliesToCategories) })
		e.Field("minOrderValue", func(e *jx.Encoder) { e.Str(p.MinOrderValue.String()) })
		if p.StartsAt != nil {
			e.Field("startsAt", func(e *jx.Encoder) { e.Str(p.StartsAt.Format(time.RFC3339Nano)) })
		}
		if p.EndsAt != nil {
			e.Field("endsAt", func(e *jx.Encoder) { e.Str(p.EndsAt.Format(time.RFC3339Nano)) })
		}
		e.Field("usageLimit", func(e *jx.Encoder) { e.Int(p.UsageLimit) })
		e.Field("usedCount", func(e *jx.Encoder) { e.Int(p.UsedCount) })
		e.Field("maxUsesPerUser", func(e *jx.Encoder) { e.Int(p.MaxUsesPerUser) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
		e.Field("createdBy", func(e *jx.Encoder) { e.Str(p.CreatedBy) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(p.CreatedAt.Format(time.RFC3339Nano)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(p.UpdatedAt.Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

func encodeStrings(e *jx.Encoder, s []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, v := range s {
			e.Str(v)
		}
	})
}

func decodePromotion(data []byte) (*promotion.Promotion, error) {
	var p promotion.Promotion
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "code":
			p.Code, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			p.Type = promotion.Type(s)
		case "value":
			p.Value, err = decodeDecimal(d)
		case "appliesToProducts":
			p.AppliesToProducts, err = decodeStrings(d)
		case "appliesToCategories":
			p.AppliesToCategories, err = decodeStrings(d)
		case "minOrderValue":
			p.MinOrderValue, err = decodeDecimal(d)
		case "startsAt":
			var t time.Time
			t, err = decodeTime(d)
			p.StartsAt = &t
		case "endsAt":
			var t time.Time
			t, err = decodeTime(d)
			p.EndsAt = &t
		case "usageLimit":
			p.UsageLimit, err = d.Int()
		case "usedCount":
			p.UsedCount, err = d.Int()
		case "maxUsesPerUser":
			p.MaxUsesPerUser, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "createdBy":
			p.CreatedBy, err = d.Str()
		case "createdAt":
			p.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			p.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
