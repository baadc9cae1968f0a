package store

import (
	"context"
	"testing"
	"time"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProductsFilters(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	drinks, err := CreateCategory(ctx, db, CategoryParams{Name: "Soft Drinks"})
	require.NoError(t, err)
	assert.Equal(t, "soft-drinks", drinks.Slug)

	brand, err := CreateBrand(ctx, db, BrandParams{Name: "Fizz Co"})
	require.NoError(t, err)

	cola := seedProduct(t, db, "Cola 0.5L", "1.20", func(p *ProductParams) {
		p.CategoryID = &drinks.ID
		p.BrandID = &brand.ID
	})
	seedProduct(t, db, "Lemonade 1L", "2.50", func(p *ProductParams) { p.CategoryID = &drinks.ID })
	seedProduct(t, db, "Cola_Zero", "1.50")
	hidden := seedProduct(t, db, "Cola Classic", "0.90")
	require.NoError(t, SetProductActive(ctx, db, hidden.ID, false))

	list := func(f ProductFilter) []models.Product {
		page, err := ListProducts(ctx, db, f, PageRequest{Page: 1, PageSize: 10})
		require.NoError(t, err)
		return page.Items.([]models.Product)
	}

	assert.Len(t, list(ProductFilter{}), 3)
	assert.Len(t, list(ProductFilter{IncludeInactive: true}), 4)
	assert.Len(t, list(ProductFilter{CategoryID: &drinks.ID}), 2)

	byBrand := list(ProductFilter{BrandID: &brand.ID})
	require.Len(t, byBrand, 1)
	assert.Equal(t, cola.ID, byBrand[0].ID)

	assert.Len(t, list(ProductFilter{Query: "cola"}), 2)
	assert.Len(t, list(ProductFilter{Query: "cola_"}), 1, "underscore must match literally")

	sorted := list(ProductFilter{Sort: SortPriceAsc})
	require.Len(t, sorted, 3)
	assertMoney(t, "1.20", sorted[0].Price)
	assertMoney(t, "2.50", sorted[2].Price)

	page, err := ListProducts(ctx, db, ProductFilter{}, PageRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items.([]models.Product), 1)
	assert.False(t, page.HasMore)

	require.NoError(t, DeleteCategory(ctx, db, drinks.ID))
	product, err := GetProduct(ctx, db, cola.ID)
	require.NoError(t, err)
	assert.Nil(t, product.CategoryID)
}

func TestUpdateProductOptimisticLock(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := seedProduct(t, db, "Pasta", "3.00",
		withTiers(models.PriceTier{MinQuantity: 10, UnitPrice: money("2.80")}))
	require.Len(t, product.PriceTiers, 1)

	params := ProductParams{
		SKU:           product.SKU,
		Name:          "Pasta 500g",
		Price:         money("3.20"),
		MinOrderQty:   5,
		StockQuantity: 40,
		IsActive:      true,
		PriceTiers: []models.PriceTier{
			{MinQuantity: 50, UnitPrice: money("2.90")},
			{MinQuantity: 20, UnitPrice: money("3.00")},
		},
	}

	updated, err := UpdateProduct(ctx, db, product.ID, product.Version, params)
	require.NoError(t, err)
	assert.Equal(t, product.Version+1, updated.Version)
	assert.Equal(t, "Pasta 500g", updated.Name)
	require.Len(t, updated.PriceTiers, 2)
	assert.Equal(t, 20, updated.PriceTiers[0].MinQuantity)

	_, err = UpdateProduct(ctx, db, product.ID, product.Version, params)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = UpdateProduct(ctx, db, 999999, 1, params)
	assert.ErrorIs(t, err, database.ErrProductNotFound)

	params.PriceTiers = []models.PriceTier{{MinQuantity: 10, UnitPrice: money("4.00")}}
	_, err = UpdateProduct(ctx, db, product.ID, updated.Version, params)
	assert.ErrorIs(t, err, ErrValidation, "tier above base price")

	reloaded, err := GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.PriceTiers, 2)

	_, err = AdjustStock(ctx, db, product.ID, -41)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	dup := ProductParams{SKU: product.SKU, Name: "Copy", Price: money("1")}
	_, err = CreateProduct(ctx, db, dup)
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestFavorites(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, "Honey", "12.00",
		withTiers(models.PriceTier{MinQuantity: 6, UnitPrice: money("11.00")}))

	require.NoError(t, AddFavorite(ctx, db, user.ID, product.ID))
	require.NoError(t, AddFavorite(ctx, db, user.ID, product.ID))
	assert.ErrorIs(t, AddFavorite(ctx, db, user.ID, 999999), database.ErrProductNotFound)

	favorites, err := ListFavorites(ctx, db, user.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, "Honey", favorites[0].Product.Name)
	assert.Len(t, favorites[0].Product.PriceTiers, 1)

	ids, err := FavoriteProductIDs(ctx, db, user.ID)
	require.NoError(t, err)
	assert.True(t, ids[product.ID])

	require.NoError(t, RemoveFavorite(ctx, db, user.ID, product.ID))
	assert.ErrorIs(t, RemoveFavorite(ctx, db, user.ID, product.ID), database.ErrProductNotFound)
}

func TestAccountLifecycle(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, db, CreateUserParams{
		Phone: "+998911234567", Email: "Owner@Shop.uz", Name: "Owner", PasswordHash: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)

	_, err = CreateUser(ctx, db, CreateUserParams{Phone: "+998911234567", Name: "Twin", PasswordHash: "x"})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	byEmail, err := GetUserByLogin(ctx, db, "owner@shop.uz")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	wallet, err := GetWallet(ctx, db, user.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero())

	t.Run("addresses keep one default", func(t *testing.T) {
		first := seedAddress(t, db, user.ID)
		assert.True(t, first.IsDefault)
		second := seedAddress(t, db, user.ID)
		assert.False(t, second.IsDefault)

		require.NoError(t, SetDefaultAddress(ctx, db, user.ID, second.ID))
		require.NoError(t, DeleteAddress(ctx, db, user.ID, second.ID))

		addresses, err := ListAddresses(ctx, db, user.ID)
		require.NoError(t, err)
		require.Len(t, addresses, 1)
		assert.True(t, addresses[0].IsDefault)
	})

	t.Run("cards", func(t *testing.T) {
		_, err := CreateCard(ctx, db, user.ID, CardParams{
			Number: "4242424242424241", HolderName: "X", ExpMonth: 1, ExpYear: 2099,
		}, time.Now())
		assert.ErrorIs(t, err, ErrValidation)

		card := seedCard(t, db, user.ID)
		assert.Equal(t, "4242", card.Last4)
		assert.Equal(t, "visa", card.Brand)
		assert.True(t, card.IsDefault)

		_, _, err = TopUpWallet(ctx, db, user.ID, card.ID, money("2000"), money("1000"))
		assert.ErrorIs(t, err, ErrValidation)

		wallet, entry, err := TopUpWallet(ctx, db, user.ID, card.ID, money("150.555"), money("1000"))
		require.NoError(t, err)
		assertMoney(t, "150.56", entry.Amount)
		assertMoney(t, "150.56", wallet.Balance)
	})

	t.Run("notifications are idempotent per event", func(t *testing.T) {
		created, err := CreateNotification(ctx, db, user.ID, "Order placed", "ORD-1", "evt-1")
		require.NoError(t, err)
		assert.True(t, created)
		created, err = CreateNotification(ctx, db, user.ID, "Order placed", "ORD-1", "evt-1")
		require.NoError(t, err)
		assert.False(t, created)
		_, err = CreateNotification(ctx, db, user.ID, "Wallet", "+10", "evt-2")
		require.NoError(t, err)

		count, err := UnreadNotificationCount(ctx, db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		page, err := ListNotifications(ctx, db, user.ID, true, "", 10)
		require.NoError(t, err)
		items := page.Items.([]models.Notification)
		require.Len(t, items, 2)

		require.NoError(t, MarkNotificationRead(ctx, db, user.ID, items[0].ID))
		n, err := MarkAllNotificationsRead(ctx, db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		page, err = ListNotifications(ctx, db, user.ID, true, "", 10)
		require.NoError(t, err)
		assert.Empty(t, page.Items.([]models.Notification))
	})

	require.NoError(t, DeleteUser(ctx, db, user.ID))
	_, err = GetUser(ctx, db, user.ID)
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}
