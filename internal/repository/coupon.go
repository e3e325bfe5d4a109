package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karim1556/ecom-core/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, value, min_order_amount, max_discount,
		usage_limit, used_count, active, expires_at, products, categories`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = UPPER(TRIM($1))`

	// Conditional increment: the guard keeps used_count under the limit even
	// when two redemptions race for the last remaining slot.
	incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING used_count`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. Codes
// are stored canonically upper-cased; lookups normalize the argument.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUsage atomically increments the usage counter, guarded by the
// usage limit. Returns coupon.ErrUsageLimitReached when the guard rejects.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) (int, error) {
	var used int
	err := r.pool.QueryRow(ctx, incrementUsageSQL, couponID).Scan(&used)
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("incrementing usage for coupon %q: %w", couponID, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, couponID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking coupon %q: %w", couponID, err)
	}
	if !exists {
		return 0, coupon.ErrNotFound
	}
	return 0, coupon.ErrUsageLimitReached
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		expiresAt    *time.Time
	)
	err := row.Scan(
		&rule.ID, &rule.Code, &discountType, &rule.Value,
		&rule.MinOrderAmount, &rule.MaxDiscount,
		&rule.UsageLimit, &rule.UsedCount, &rule.Active, &expiresAt,
		&rule.Products, &rule.Categories,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.ExpiresAt = expiresAt
	return rule, err
}
