package pricing

import (
	"testing"

	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleTiers() []models.PriceTier {
	// deliberately unsorted
	return []models.PriceTier{
		{MinQuantity: 50, UnitPrice: d("8.00")},
		{MinQuantity: 10, UnitPrice: d("9.00")},
		{MinQuantity: 100, UnitPrice: d("7.50")},
	}
}

func TestUnitPriceBoundaries(t *testing.T) {
	base := d("10.00")
	tiers := sampleTiers()

	tests := []struct {
		qty  int
		want string
	}{
		{0, "10"},
		{1, "10"},
		{9, "10"},
		{10, "9"},
		{11, "9"},
		{49, "9"},
		{50, "8"},
		{99, "8"},
		{100, "7.5"},
		{5000, "7.5"},
	}

	for _, tt := range tests {
		got := UnitPrice(base, tiers, tt.qty)
		assert.True(t, got.Equal(d(tt.want)), "qty %d: want %s, got %s", tt.qty, tt.want, got)
	}
}

func TestUnitPriceWithoutTiers(t *testing.T) {
	assert.True(t, UnitPrice(d("3.25"), nil, 1000).Equal(d("3.25")))
}

func TestLineTotal(t *testing.T) {
	base := d("10.00")
	assert.True(t, LineTotal(base, sampleTiers(), 50).Equal(d("400")))
	assert.True(t, LineTotal(base, sampleTiers(), 3).Equal(d("30")))
	assert.True(t, LineTotal(base, sampleTiers(), 0).IsZero())
}

func TestNextTier(t *testing.T) {
	tiers := sampleTiers()

	next := NextTier(tiers, 1)
	require.NotNil(t, next)
	assert.Equal(t, 10, next.MinQuantity)

	next = NextTier(tiers, 10)
	require.NotNil(t, next)
	assert.Equal(t, 50, next.MinQuantity)

	assert.Nil(t, NextTier(tiers, 100))
	assert.Nil(t, NextTier(nil, 1))
}

func TestSortTiers(t *testing.T) {
	tiers := sampleTiers()
	SortTiers(tiers)
	assert.Equal(t, 10, tiers[0].MinQuantity)
	assert.Equal(t, 50, tiers[1].MinQuantity)
	assert.Equal(t, 100, tiers[2].MinQuantity)
}

func TestValidateTiers(t *testing.T) {
	base := d("10")
	assert.NoError(t, ValidateTiers(base, sampleTiers()))
	assert.NoError(t, ValidateTiers(base, nil))

	assert.ErrorIs(t, ValidateTiers(base, []models.PriceTier{{MinQuantity: 0, UnitPrice: d("9")}}), ErrTierQuantity)
	assert.ErrorIs(t, ValidateTiers(base, []models.PriceTier{
		{MinQuantity: 5, UnitPrice: d("9")},
		{MinQuantity: 5, UnitPrice: d("8")},
	}), ErrTierDuplicate)
	assert.ErrorIs(t, ValidateTiers(base, []models.PriceTier{{MinQuantity: 5, UnitPrice: d("11")}}), ErrTierPrice)
	assert.ErrorIs(t, ValidateTiers(base, []models.PriceTier{{MinQuantity: 5, UnitPrice: d("0")}}), ErrTierPrice)
}

func TestMinimumOrder(t *testing.T) {
	assert.Equal(t, 12, FloorQuantity(1, 12))
	assert.Equal(t, 12, FloorQuantity(12, 12))
	assert.Equal(t, 30, FloorQuantity(30, 12))
	assert.Equal(t, 1, FloorQuantity(0, 0))

	assert.False(t, MeetsMinimum(11, 12))
	assert.True(t, MeetsMinimum(12, 12))
	assert.False(t, MeetsMinimum(0, 0))
}

func TestDiscount(t *testing.T) {
	assert.True(t, Discount(d("200"), DiscountPercent, d("10")).Equal(d("20")))
	assert.True(t, Discount(d("33.33"), DiscountPercent, d("15")).Equal(d("5")))
	assert.True(t, Discount(d("100"), DiscountFixed, d("25")).Equal(d("25")))
	assert.True(t, Discount(d("20"), DiscountFixed, d("25")).Equal(d("20")))
	assert.True(t, Discount(d("20"), "bogus", d("5")).IsZero())
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(DiscountPercent, d("100")))
	assert.ErrorIs(t, ValidateDiscount(DiscountPercent, d("101")), ErrDiscountValue)
	assert.ErrorIs(t, ValidateDiscount(DiscountFixed, d("0")), ErrDiscountValue)
	assert.ErrorIs(t, ValidateDiscount("bogus", d("1")), ErrDiscountValue)
}
