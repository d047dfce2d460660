package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
)

// Fields carries the mutable attributes of a promotion. Nil fields are left
// unchanged on update and take their defaults on create.
type Fields struct {
	Name                *string
	Code                *string
	Description         *string
	Type                *Type
	Value               *decimal.Decimal
	AppliesToProducts   *[]string
	AppliesToCategories *[]string
	MinOrderValue       *decimal.Decimal
	StartsAt            *time.Time
	EndsAt              *time.Time
	UsageLimit          *int
	MaxUsesPerUser      *int
	Active              *bool
}

func (f Fields) applyTo(p *Promotion) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Code != nil {
		p.Code = strings.TrimSpace(*f.Code)
	}
	if f.Description != nil {
		p.Description = *f.Description
	}
	if f.Type != nil {
		p.Type = *f.Type
	}
	if f.Value != nil {
		p.Value = *f.Value
	}
	if f.AppliesToProducts != nil {
		p.AppliesToProducts = *f.AppliesToProducts
	}
	if f.AppliesToCategories != nil {
		p.AppliesToCategories = *f.AppliesToCategories
	}
	if f.MinOrderValue != nil {
		p.MinOrderValue = *f.MinOrderValue
	}
	if f.StartsAt != nil {
		t := *f.StartsAt
		p.StartsAt = &t
	}
	if f.EndsAt != nil {
		t := *f.EndsAt
		p.EndsAt = &t
	}
	if f.UsageLimit != nil {
		p.UsageLimit = *f.UsageLimit
	}
	if f.MaxUsesPerUser != nil {
		p.MaxUsesPerUser = *f.MaxUsesPerUser
	}
	if f.Active != nil {
		p.Active = *f.Active
	}
}

// Service implements promotion listing and administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a promotion Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns promotions newest first. Only switched-on promotions inside
// their date window are returned unless all is set by an administrator.
func (s *Service) List(ctx context.Context, caller auth.Identity, all bool) ([]Promotion, error) {
	var activeAt *time.Time
	if !all || !caller.IsAdmin() {
		now := s.now()
		activeAt = &now
	}

	promos, err := s.repo.List(ctx, activeAt)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return promos, nil
}

// Create validates and stores a new promotion owned by caller.
func (s *Service) Create(ctx context.Context, caller auth.Identity, f Fields) (*Promotion, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}

	now := s.now()
	p := &Promotion{
		ID:             uuid.New().String(),
		MinOrderValue:  decimal.Zero,
		StartsAt:       &now,
		MaxUsesPerUser: 1,
		Active:         true,
		CreatedBy:      caller.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.applyTo(p)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create promotion")
	}
	return p, nil
}

// Update applies f to the promotion with the given ID.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id string, f Fields) (*Promotion, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find promotion")
	}

	f.applyTo(p)
	p.UpdatedAt = s.now()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update promotion")
	}
	return p, nil
}

// Delete removes the promotion with the given ID.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if !caller.IsAdmin() {
		return auth.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete promotion")
	}
	return nil
}
