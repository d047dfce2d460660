package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const promotionColumns = `id, name, code, description, type, value,
	applies_to_products, applies_to_categories, min_order_value,
	starts_at, ends_at, usage_limit, used_count, max_uses_per_user,
	active, created_by, created_at, updated_at`

const (
	getPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE LOWER(code) = LOWER($1)`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE id = $1`

	listPromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE $1::timestamptz IS NULL OR (
			active = TRUE
			AND (starts_at IS NULL OR starts_at <= $1)
			AND (ends_at IS NULL OR ends_at >= $1)
		)
		ORDER BY created_at DESC, id`

	createPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	updatePromotionSQL = `UPDATE promotions SET
		name = $2, code = $3, description = $4, type = $5, value = $6,
		applies_to_products = $7, applies_to_categories = $8, min_order_value = $9,
		starts_at = $10, ends_at = $11, usage_limit = $12, max_uses_per_user = $13,
		active = $14, updated_at = $15
		WHERE id = $1`

	deletePromotionSQL = `DELETE FROM promotions WHERE id = $1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up a promotion by its code (case-insensitive).
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.findOne(ctx, getPromotionByCodeSQL, code)
}

// FindByID looks up a promotion by its identifier.
func (r *PromotionRepository) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.findOne(ctx, getPromotionByIDSQL, id)
}

func (r *PromotionRepository) findOne(ctx context.Context, query, arg string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion %q: %w", arg, err)
	}
	return &p, nil
}

// List returns promotions newest first, filtered to those active at
// activeAt when it is non-nil.
func (r *PromotionRepository) List(ctx context.Context, activeAt *time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL, activeAt)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// Create inserts a new promotion. Returns promotion.ErrDuplicateCode when the
// code is already taken.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	_, err := r.pool.Exec(ctx, createPromotionSQL,
		p.ID, p.Name, p.Code, p.Description, string(p.Type), p.Value,
		nonNil(p.AppliesToProducts), nonNil(p.AppliesToCategories), p.MinOrderValue,
		p.StartsAt, p.EndsAt, p.UsageLimit, p.UsedCount, p.MaxUsesPerUser,
		p.Active, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrDuplicateCode
		}
		return fmt.Errorf("creating promotion %q: %w", p.Code, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing promotion. The usage
// counter is owned by order confirmation and is never written here.
func (r *PromotionRepository) Update(ctx context.Context, p *promotion.Promotion) error {
	tag, err := r.pool.Exec(ctx, updatePromotionSQL,
		p.ID, p.Name, p.Code, p.Description, string(p.Type), p.Value,
		nonNil(p.AppliesToProducts), nonNil(p.AppliesToCategories), p.MinOrderValue,
		p.StartsAt, p.EndsAt, p.UsageLimit, p.MaxUsesPerUser,
		p.Active, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrDuplicateCode
		}
		return fmt.Errorf("updating promotion %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// Delete removes a promotion.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deletePromotionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p   promotion.Promotion
		typ string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Code, &p.Description, &typ, &p.Value,
		&p.AppliesToProducts, &p.AppliesToCategories, &p.MinOrderValue,
		&p.StartsAt, &p.EndsAt, &p.UsageLimit, &p.UsedCount, &p.MaxUsesPerUser,
		&p.Active, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Type = promotion.Type(typ)
	return p, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
