package store

import (
	"context"
	"testing"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartMinimumOrderRules(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, "Sugar 1kg", "10.00",
		withMinOrder(10),
		withTiers(models.PriceTier{MinQuantity: 20, UnitPrice: money("9.00")}))

	t.Run("add floors to minimum", func(t *testing.T) {
		cart, err := AddToCart(ctx, db, user.ID, product.ID, 3)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 10, cart.Items[0].Quantity)
		assertMoney(t, "100.00", cart.Subtotal)
		require.NotNil(t, cart.Items[0].NextTier)
		assert.Equal(t, 20, cart.Items[0].NextTier.MinQuantity)
	})

	t.Run("adding again accumulates and reaches tier", func(t *testing.T) {
		cart, err := AddToCart(ctx, db, user.ID, product.ID, 10)
		require.NoError(t, err)
		assert.Equal(t, 20, cart.Items[0].Quantity)
		assertMoney(t, "9.00", cart.Items[0].UnitPrice)
		assertMoney(t, "180.00", cart.Subtotal)
		assertMoney(t, "20.00", cart.Savings)
	})

	t.Run("update below minimum removes line", func(t *testing.T) {
		cart, removed, err := SetCartQuantity(ctx, db, user.ID, product.ID, 5)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Empty(t, cart.Items)
		assert.True(t, cart.Subtotal.IsZero())
	})

	t.Run("update missing line", func(t *testing.T) {
		_, _, err := SetCartQuantity(ctx, db, user.ID, product.ID, 15)
		assert.ErrorIs(t, err, database.ErrCartItemNotFound)
	})
}

func TestAddInactiveProductRejected(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, "Retired", "5.00")
	require.NoError(t, SetProductActive(ctx, db, product.ID, false))

	_, err := AddToCart(ctx, db, user.ID, product.ID, 1)
	assert.ErrorIs(t, err, database.ErrProductInactive)

	_, err = AddToCart(ctx, db, user.ID, 999999, 1)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}
