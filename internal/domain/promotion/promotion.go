package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported promotion discount strategies.
type Type string

const (
	// TypePercent takes a percentage off the applicable subtotal.
	TypePercent Type = "percent"
	// TypeFixed takes a fixed amount off, capped at the subtotal.
	TypeFixed Type = "fixed"
	// TypeFreeShipping waives the shipping line and leaves the subtotal alone.
	TypeFreeShipping Type = "free_shipping"
)

// Valid reports whether t is a known promotion type.
func (t Type) Valid() bool {
	switch t {
	case TypePercent, TypeFixed, TypeFreeShipping:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when no promotion matches the code or ID.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidOrExpired is returned when a promotion fails the active flag,
	// date window or usage cap checks.
	ErrInvalidOrExpired = errors.New("promotion is not active or expired")
	// ErrPerUserLimitReached is returned at redemption when the user has
	// already used the promotion MaxUsesPerUser times.
	ErrPerUserLimitReached = errors.New("promotion usage limit per user reached")
	// ErrDuplicateCode is returned when creating or renaming a promotion to a
	// code that is already taken.
	ErrDuplicateCode = errors.New("promotion code already exists")
)

// BelowMinimumOrderError indicates the order subtotal is below the
// promotion's minimum order value.
type BelowMinimumOrderError struct {
	MinOrderValue decimal.Decimal
}

func (e *BelowMinimumOrderError) Error() string {
	return fmt.Sprintf("minimum order value %s required", e.MinOrderValue.String())
}

// ValidationError describes an invalid promotion definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid promotion %s: %s", e.Field, e.Reason)
}

// Promotion is a coded discount rule with temporal and usage constraints.
type Promotion struct {
	ID                  string
	Name                string
	Code                string
	Description         string
	Type                Type
	Value               decimal.Decimal
	AppliesToProducts   []string
	AppliesToCategories []string
	MinOrderValue       decimal.Decimal
	StartsAt            *time.Time
	EndsAt              *time.Time
	UsageLimit          int // 0 = unlimited
	UsedCount           int
	MaxUsesPerUser      int // 0 = unlimited
	Active              bool
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive reports whether the promotion is switched on, inside its date
// window and below its global usage cap at the given instant.
func (p *Promotion) IsActive(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return false
	}
	return true
}

// Restricted reports whether the promotion only applies to a subset of
// products or categories.
func (p *Promotion) Restricted() bool {
	return len(p.AppliesToProducts) > 0 || len(p.AppliesToCategories) > 0
}

// Validate checks the promotion definition for administrator mistakes.
func (p *Promotion) Validate() error {
	switch {
	case p.Code == "":
		return &ValidationError{Field: "code", Reason: "is required"}
	case p.Name == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case !p.Type.Valid():
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported type %q", p.Type)}
	case p.Value.IsNegative():
		return &ValidationError{Field: "value", Reason: "must not be negative"}
	case p.Type == TypePercent && p.Value.GreaterThan(hundred):
		return &ValidationError{Field: "value", Reason: "percent must be between 0 and 100"}
	case p.MinOrderValue.IsNegative():
		return &ValidationError{Field: "minOrderValue", Reason: "must not be negative"}
	case p.UsageLimit < 0:
		return &ValidationError{Field: "usageLimit", Reason: "must not be negative"}
	case p.MaxUsesPerUser < 0:
		return &ValidationError{Field: "maxUsesPerUser", Reason: "must not be negative"}
	case p.StartsAt != nil && p.EndsAt != nil && p.EndsAt.Before(*p.StartsAt):
		return &ValidationError{Field: "endsAt", Reason: "must not be before startsAt"}
	}
	return nil
}

// Redemption is one committed use of a promotion by a user for an order.
type Redemption struct {
	PromotionID string
	UserID      string
	OrderID     string
	RedeemedAt  time.Time
}

// Repository provides persistence for promotions.
type Repository interface {
	// FindByCode returns the promotion with the given code (case-insensitive)
	// or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	// FindByID returns the promotion with the given ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Promotion, error)
	// List returns promotions newest first. When activeAt is non-nil only
	// switched-on promotions whose date window contains activeAt are returned.
	List(ctx context.Context, activeAt *time.Time) ([]Promotion, error)
	Create(ctx context.Context, p *Promotion) error
	Update(ctx context.Context, p *Promotion) error
	Delete(ctx context.Context, id string) error
}
