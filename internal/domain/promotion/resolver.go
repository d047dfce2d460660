package promotion

import (
	"time"
)

// Resolve checks, in order, that the promotion exists, is active at now and
// that the subtotal meets the minimum order value, then applies the
// discount. Any failed check rejects the whole operation.
//
// Per-user limits are not checked here; they are enforced when an order
// redeems the promotion.
func Resolve(p *Promotion, items []Item, now time.Time) (Resolution, error) {
	if p == nil {
		return Resolution{}, ErrNotFound
	}
	if !p.IsActive(now) {
		return Resolution{}, ErrInvalidOrExpired
	}

	if subtotal := Subtotal(items); subtotal.LessThan(p.MinOrderValue) {
		return Resolution{}, &BelowMinimumOrderError{MinOrderValue: p.MinOrderValue}
	}

	return Apply(p, items)
}
