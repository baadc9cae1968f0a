package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/pricing"
	"github.com/shopspring/decimal"
)

type CouponParams struct {
	Code          string
	DiscountType  string
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxUses       int
	ValidFrom     *time.Time
	ValidTo       *time.Time
	IsActive      bool
}

func (p *CouponParams) normalize() error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	if p.Code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if err := pricing.ValidateDiscount(p.DiscountType, p.DiscountValue); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if p.MinOrderValue.IsNegative() || p.MaxUses < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrValidation)
	}
	if p.ValidFrom != nil && p.ValidTo != nil && p.ValidTo.Before(*p.ValidFrom) {
		return fmt.Errorf("%w: valid_to is before valid_from", ErrValidation)
	}
	return nil
}

const couponColumns = `id, code, discount_type, discount_value, min_order_value, max_uses, used_count,
	valid_from, valid_to, is_active, created_at, updated_at`

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	c := &models.Coupon{}
	var from, to sql.NullTime
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderValue, &c.MaxUses,
		&c.UsedCount, &from, &to, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if from.Valid {
		c.ValidFrom = &from.Time
	}
	if to.Valid {
		c.ValidTo = &to.Time
	}
	return c, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func CreateCoupon(ctx context.Context, db *sql.DB, p CouponParams) (*models.Coupon, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	c, err := scanCoupon(db.QueryRowContext(ctx, `
		INSERT INTO coupons (code, discount_type, discount_value, min_order_value, max_uses, used_count,
		                     valid_from, valid_to, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, NOW(), NOW())
		RETURNING `+couponColumns,
		p.Code, p.DiscountType, p.DiscountValue, p.MinOrderValue, p.MaxUses,
		nullableTime(p.ValidFrom), nullableTime(p.ValidTo), p.IsActive))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: coupon code already exists", database.ErrDuplicate)
		}
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return c, nil
}

func UpdateCoupon(ctx context.Context, db *sql.DB, id int64, p CouponParams) (*models.Coupon, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	c, err := scanCoupon(db.QueryRowContext(ctx, `
		UPDATE coupons
		SET code = $1, discount_type = $2, discount_value = $3, min_order_value = $4, max_uses = $5,
		    valid_from = $6, valid_to = $7, is_active = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING `+couponColumns,
		p.Code, p.DiscountType, p.DiscountValue, p.MinOrderValue, p.MaxUses,
		nullableTime(p.ValidFrom), nullableTime(p.ValidTo), p.IsActive, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: coupon code already exists", database.ErrDuplicate)
		}
		return nil, fmt.Errorf("update coupon: %w", err)
	}
	return c, nil
}

func GetCouponByCode(ctx context.Context, db database.Querier, code string) (*models.Coupon, error) {
	c, err := scanCoupon(db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func ListCoupons(ctx context.Context, db *sql.DB) ([]models.Coupon, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []models.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return coupons, nil
}

func DeleteCoupon(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	return expectOneRow(result, database.ErrCouponNotFound)
}

// CouponDiscount checks that the coupon applies to an order of subtotal at
// now and returns the discount amount.
func CouponDiscount(c *models.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	switch {
	case !c.IsActive:
		return decimal.Zero, fmt.Errorf("%w: coupon is inactive", database.ErrCouponInvalid)
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return decimal.Zero, fmt.Errorf("%w: coupon is not yet valid", database.ErrCouponInvalid)
	case c.ValidTo != nil && now.After(*c.ValidTo):
		return decimal.Zero, fmt.Errorf("%w: coupon has expired", database.ErrCouponInvalid)
	case c.MaxUses > 0 && c.UsedCount >= c.MaxUses:
		return decimal.Zero, fmt.Errorf("%w: coupon usage limit reached", database.ErrCouponInvalid)
	case subtotal.LessThan(c.MinOrderValue):
		return decimal.Zero, fmt.Errorf("%w: order total below %s", database.ErrCouponInvalid, c.MinOrderValue.StringFixed(2))
	}
	return pricing.Discount(subtotal, c.DiscountType, c.DiscountValue), nil
}

// redeemCoupon locks the coupon, validates it and counts the use.
func redeemCoupon(ctx context.Context, tx *sql.Tx, code string, subtotal decimal.Decimal, now time.Time) (*models.Coupon, decimal.Decimal, error) {
	c, err := scanCoupon(tx.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, decimal.Zero, database.ErrCouponNotFound
		}
		return nil, decimal.Zero, fmt.Errorf("lock coupon: %w", err)
	}

	discount, err := CouponDiscount(c, subtotal, now)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`, c.ID); err != nil {
		return nil, decimal.Zero, fmt.Errorf("redeem coupon: %w", err)
	}
	return c, discount, nil
}

// releaseCoupon gives back the use taken by redeemCoupon.
func releaseCoupon(ctx context.Context, tx *sql.Tx, code string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count - 1, updated_at = NOW()
		WHERE code = $1 AND used_count > 0`, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}
