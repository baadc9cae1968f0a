// Package pricing computes wholesale prices: quantity price tiers, minimum
// order floors and coupon discounts.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrTierQuantity  = errors.New("tier minimum quantity must be at least 1")
	ErrTierDuplicate = errors.New("duplicate tier minimum quantity")
	ErrTierPrice     = errors.New("tier unit price must be positive and not above the base price")
	ErrDiscountValue = errors.New("invalid discount value")
)

// UnitPrice returns the unit price for qty: the tier with the largest
// MinQuantity not exceeding qty, or base when no tier qualifies.
// Tiers may be in any order.
func UnitPrice(base decimal.Decimal, tiers []models.PriceTier, qty int) decimal.Decimal {
	price := base
	best := 0
	for _, t := range tiers {
		if t.MinQuantity <= qty && t.MinQuantity > best {
			best = t.MinQuantity
			price = t.UnitPrice
		}
	}
	return price
}

func LineTotal(base decimal.Decimal, tiers []models.PriceTier, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return UnitPrice(base, tiers, qty).Mul(decimal.NewFromInt(int64(qty)))
}

// NextTier returns the cheapest-threshold tier above qty, or nil when qty
// already qualifies for the top tier.
func NextTier(tiers []models.PriceTier, qty int) *models.PriceTier {
	var next *models.PriceTier
	for i := range tiers {
		t := tiers[i]
		if t.MinQuantity > qty && (next == nil || t.MinQuantity < next.MinQuantity) {
			next = &t
		}
	}
	return next
}

// SortTiers orders tiers by ascending minimum quantity.
func SortTiers(tiers []models.PriceTier) {
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinQuantity < tiers[j].MinQuantity
	})
}

func ValidateTiers(base decimal.Decimal, tiers []models.PriceTier) error {
	seen := make(map[int]bool, len(tiers))
	for _, t := range tiers {
		if t.MinQuantity < 1 {
			return ErrTierQuantity
		}
		if seen[t.MinQuantity] {
			return fmt.Errorf("%w: %d", ErrTierDuplicate, t.MinQuantity)
		}
		seen[t.MinQuantity] = true
		if !t.UnitPrice.IsPositive() || t.UnitPrice.GreaterThan(base) {
			return ErrTierPrice
		}
	}
	return nil
}

// FloorQuantity raises qty to the product's minimum order.
func FloorQuantity(qty, minOrder int) int {
	if minOrder < 1 {
		minOrder = 1
	}
	if qty < minOrder {
		return minOrder
	}
	return qty
}

// MeetsMinimum reports whether qty is a purchasable quantity.
func MeetsMinimum(qty, minOrder int) bool {
	if minOrder < 1 {
		minOrder = 1
	}
	return qty >= minOrder
}

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

func ValidateDiscount(kind string, value decimal.Decimal) error {
	switch kind {
	case DiscountPercent:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return ErrDiscountValue
		}
	case DiscountFixed:
		if !value.IsPositive() {
			return ErrDiscountValue
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrDiscountValue, kind)
	}
	return nil
}

// Discount returns the amount taken off subtotal, rounded to cents and
// capped at the subtotal.
func Discount(subtotal decimal.Decimal, kind string, value decimal.Decimal) decimal.Decimal {
	var off decimal.Decimal
	switch kind {
	case DiscountPercent:
		off = subtotal.Mul(value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		off = value
	default:
		return decimal.Zero
	}
	off = off.Round(2)
	if off.GreaterThan(subtotal) {
		return subtotal
	}
	if off.IsNegative() {
		return decimal.Zero
	}
	return off
}
