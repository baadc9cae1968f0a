package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/pricing"
	"github.com/safar/wholesale-store/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutAppliesTierPricing(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	product := seedProduct(t, db, "Rice 5kg", "10.00",
		withMinOrder(10),
		withTiers(
			models.PriceTier{MinQuantity: 10, UnitPrice: money("9.00")},
			models.PriceTier{MinQuantity: 50, UnitPrice: money("8.00")},
		))

	_, err := AddToCart(ctx, db, user.ID, product.ID, 50)
	require.NoError(t, err)

	order, err := Checkout(ctx, db, CheckoutRequest{
		UserID:        user.ID,
		AddressID:     address.ID,
		PaymentMethod: models.PaymentCashOnDelivery,
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)
	assertMoney(t, "400.00", order.Subtotal)
	assertMoney(t, "400.00", order.TotalAmount)
	require.Len(t, order.Items, 1)
	assertMoney(t, "8.00", order.Items[0].UnitPrice)
	assert.Equal(t, "Rice 5kg", order.Items[0].ProductName)
	require.Len(t, order.History, 1)
	assert.Equal(t, models.OrderStatusPending, order.History[0].Status)
	assert.Contains(t, order.ShippingAddress, "12 Market St")

	assert.Equal(t, 50, stockOf(t, db, product.ID))

	cart, err := GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCheckoutFailuresLeaveStateUntouched(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	product := seedProduct(t, db, "Flour", "4.00", withStock(10))

	t.Run("empty cart", func(t *testing.T) {
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
		assert.ErrorIs(t, err, database.ErrEmptyCart)
	})

	_, err := AddToCart(ctx, db, user.ID, product.ID, 8)
	require.NoError(t, err)
	_, err = AdjustStock(ctx, db, product.ID, -5)
	require.NoError(t, err)

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
		assert.ErrorIs(t, err, database.ErrInsufficientStock)
		assert.Equal(t, 5, stockOf(t, db, product.ID))

		cart, err := GetCart(ctx, db, user.ID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.False(t, cart.Items[0].InStock)
	})

	_, _, err = SetCartQuantity(ctx, db, user.ID, product.ID, 2)
	require.NoError(t, err)

	t.Run("wallet without funds", func(t *testing.T) {
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentWallet}, time.Now())
		assert.ErrorIs(t, err, database.ErrInsufficientFunds)
		assert.Equal(t, 5, stockOf(t, db, product.ID))
	})

	t.Run("unknown coupon", func(t *testing.T) {
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentCashOnDelivery, CouponCode: "NOPE"}, time.Now())
		assert.ErrorIs(t, err, database.ErrCouponNotFound)
	})

	t.Run("card payment needs card", func(t *testing.T) {
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentMethodCard}, time.Now())
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("someone else's address", func(t *testing.T) {
		other := seedUser(t, db)
		foreign := seedAddress(t, db, other.ID)
		_, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: foreign.ID,
			PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
		assert.ErrorIs(t, err, database.ErrAddressNotFound)
	})

	page, err := ListOrdersCursor(ctx, db, user.ID, "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCheckoutWithCouponAndWallet(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	card := seedCard(t, db, user.ID)
	product := seedProduct(t, db, "Oil 1L", "25.00")

	_, err := CreateCoupon(ctx, db, CouponParams{
		Code:          "save10",
		DiscountType:  pricing.DiscountPercent,
		DiscountValue: money("10"),
		MaxUses:       1,
		IsActive:      true,
	})
	require.NoError(t, err)

	_, _, err = TopUpWallet(ctx, db, user.ID, card.ID, money("500"), money("1000"))
	require.NoError(t, err)

	_, err = AddToCart(ctx, db, user.ID, product.ID, 4)
	require.NoError(t, err)

	order, err := Checkout(ctx, db, CheckoutRequest{
		UserID:        user.ID,
		AddressID:     address.ID,
		PaymentMethod: models.PaymentWallet,
		CouponCode:    "SAVE10",
	}, time.Now())
	require.NoError(t, err)

	assertMoney(t, "100.00", order.Subtotal)
	assertMoney(t, "10.00", order.Discount)
	assertMoney(t, "90.00", order.TotalAmount)
	assert.Equal(t, "SAVE10", order.CouponCode)

	wallet, err := GetWallet(ctx, db, user.ID)
	require.NoError(t, err)
	assertMoney(t, "410.00", wallet.Balance)

	coupon, err := GetCouponByCode(ctx, db, "save10")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.UsedCount)

	_, err = AddToCart(ctx, db, user.ID, product.ID, 1)
	require.NoError(t, err)
	_, err = Checkout(ctx, db, CheckoutRequest{
		UserID:        user.ID,
		AddressID:     address.ID,
		PaymentMethod: models.PaymentWallet,
		CouponCode:    "SAVE10",
	}, time.Now())
	assert.ErrorIs(t, err, database.ErrCouponInvalid)

	t.Run("cancel refunds wallet, restocks and releases the coupon", func(t *testing.T) {
		cancelled, err := CancelOrder(ctx, db, user.ID, order.ID, "ordered twice")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
		require.Len(t, cancelled.History, 2)
		assert.Equal(t, "Cancelled by customer: ordered twice", cancelled.History[1].Note)

		wallet, err := GetWallet(ctx, db, user.ID)
		require.NoError(t, err)
		assertMoney(t, "500.00", wallet.Balance)
		assert.Equal(t, 100, stockOf(t, db, product.ID))

		coupon, err := GetCouponByCode(ctx, db, "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, 0, coupon.UsedCount)

		_, err = CancelOrder(ctx, db, user.ID, order.ID, "")
		assert.ErrorIs(t, err, database.ErrInvalidStatusChange)
	})

	t.Run("transactions newest first", func(t *testing.T) {
		page, err := ListWalletTransactions(ctx, db, user.ID, "", 10)
		require.NoError(t, err)
		entries := page.Items.([]models.WalletTransaction)
		require.Len(t, entries, 3)
		assert.Equal(t, models.WalletCredit, entries[0].Type)
		assert.Equal(t, models.WalletDebit, entries[1].Type)
		assertMoney(t, "500.00", entries[0].BalanceAfter)
	})
}

func TestConcurrentCheckoutDoesNotOversell(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := seedProduct(t, db, "Limited", "3.00", withStock(10))

	const buyers = 4
	requests := make([]CheckoutRequest, buyers)
	for i := range requests {
		user := seedUser(t, db)
		address := seedAddress(t, db, user.ID)
		_, err := AddToCart(ctx, db, user.ID, product.ID, 10)
		require.NoError(t, err)
		requests[i] = CheckoutRequest{UserID: user.ID, AddressID: address.ID, PaymentMethod: models.PaymentCashOnDelivery}
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Checkout(ctx, db, requests[i], time.Now())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, database.ErrInsufficientStock) || database.IsRetryable(err),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, stockOf(t, db, product.ID))
}

func TestListOrdersCursor(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	product := seedProduct(t, db, "Tea", "2.00")

	var ids []int64
	for i := 0; i < 3; i++ {
		_, err := AddToCart(ctx, db, user.ID, product.ID, 1)
		require.NoError(t, err)
		order, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
			PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	first, err := ListOrdersCursor(ctx, db, user.ID, "", "", 2)
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	orders := first.Items.([]models.Order)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[1], orders[1].ID)

	second, err := ListOrdersCursor(ctx, db, user.ID, "", first.NextCursor, 2)
	require.NoError(t, err)
	assert.False(t, second.HasMore)
	orders = second.Items.([]models.Order)
	require.Len(t, orders, 1)
	assert.Equal(t, ids[0], orders[0].ID)

	_, err = CancelOrder(ctx, db, user.ID, ids[0], "")
	require.NoError(t, err)
	cancelled, err := ListOrdersCursor(ctx, db, user.ID, models.OrderStatusCancelled, "", 10)
	require.NoError(t, err)
	assert.Len(t, cancelled.Items.([]models.Order), 1)

	_, err = ListOrdersCursor(ctx, db, user.ID, "", "%%%", 10)
	assert.ErrorIs(t, err, ErrInvalidCursor)

	other := seedUser(t, db)
	_, err = GetUserOrder(ctx, db, other.ID, ids[0])
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}

func TestOrderFulfilmentAndReturn(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	product := seedProduct(t, db, "Soap", "6.00")

	_, err := AddToCart(ctx, db, user.ID, product.ID, 5)
	require.NoError(t, err)
	order, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
		PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
	require.NoError(t, err)

	_, _, err = CreateShipment(ctx, db, order.ID, "DHL", "TRK1")
	assert.ErrorIs(t, err, database.ErrInvalidStatusChange, "pending orders cannot ship")

	_, err = UpdateOrderStatus(ctx, db, order.ID, order.Version+1, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	confirmed, err := UpdateOrderStatus(ctx, db, order.ID, order.Version, models.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)

	shipment, shipped, err := CreateShipment(ctx, db, order.ID, "DHL", "TRK1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
	assert.Equal(t, models.ShipmentInTransit, shipment.Status)

	_, err = RequestReturn(ctx, db, user.ID, order.ID, "damaged")
	assert.ErrorIs(t, err, database.ErrInvalidStatusChange)

	delivered, delivOrder, err := MarkShipmentDelivered(ctx, db, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, models.OrderStatusDelivered, delivOrder.Status)
	require.Len(t, delivOrder.Shipments, 1)

	ret, err := RequestReturn(ctx, db, user.ID, order.ID, "damaged")
	require.NoError(t, err)
	_, err = RequestReturn(ctx, db, user.ID, order.ID, "again")
	assert.ErrorIs(t, err, database.ErrDuplicate)

	_, err = ResolveReturn(ctx, db, ret.ID, true, money("31.00"), "")
	assert.ErrorIs(t, err, ErrValidation)

	resolved, err := ResolveReturn(ctx, db, ret.ID, true, money("12.00"), "two bars broken")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnApproved, resolved.Status)

	wallet, err := GetWallet(ctx, db, user.ID)
	require.NoError(t, err)
	assertMoney(t, "12.00", wallet.Balance)

	_, err = ResolveReturn(ctx, db, ret.ID, false, money("0"), "")
	assert.ErrorIs(t, err, database.ErrInvalidStatusChange)

	second, err := RequestReturn(ctx, db, user.ID, order.ID, "rest of the box")
	require.NoError(t, err)
	_, err = ResolveReturn(ctx, db, second.ID, true, money("30.00"), "")
	assert.ErrorIs(t, err, ErrValidation, "refunds across returns are capped at the order total")
	_, err = ResolveReturn(ctx, db, second.ID, true, money("18.01"), "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ResolveReturn(ctx, db, second.ID, true, money("18.00"), "")
	require.NoError(t, err)

	third, err := RequestReturn(ctx, db, user.ID, order.ID, "one more")
	require.NoError(t, err)
	_, err = ResolveReturn(ctx, db, third.ID, true, money("0.01"), "")
	assert.ErrorIs(t, err, ErrValidation)
	rejected, err := ResolveReturn(ctx, db, third.ID, false, money("0"), "fully refunded")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnRejected, rejected.Status)

	wallet, err = GetWallet(ctx, db, user.ID)
	require.NoError(t, err)
	assertMoney(t, "30.00", wallet.Balance)
}

func TestReorderSkipsUnavailableAndFloorsQuantities(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID)
	tea := seedProduct(t, db, "Tea", "4.00")
	sugar := seedProduct(t, db, "Sugar", "2.00")
	salt := seedProduct(t, db, "Salt", "1.00")

	for _, line := range []struct {
		id  int64
		qty int
	}{{tea.ID, 5}, {sugar.ID, 3}, {salt.ID, 2}} {
		_, err := AddToCart(ctx, db, user.ID, line.id, line.qty)
		require.NoError(t, err)
	}
	order, err := Checkout(ctx, db, CheckoutRequest{UserID: user.ID, AddressID: address.ID,
		PaymentMethod: models.PaymentCashOnDelivery}, time.Now())
	require.NoError(t, err)

	require.NoError(t, SetProductActive(ctx, db, salt.ID, false))
	_, err = db.ExecContext(ctx, `UPDATE products SET min_order_qty = 10 WHERE id = $1`, sugar.ID)
	require.NoError(t, err)

	_, err = AddToCart(ctx, db, user.ID, tea.ID, 2)
	require.NoError(t, err)

	cart, skipped, err := Reorder(ctx, db, user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	quantities := make(map[int64]int)
	for _, item := range cart.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[int64]int{tea.ID: 7, sugar.ID: 10}, quantities)
	assertMoney(t, "48.00", cart.Subtotal)

	other := seedUser(t, db)
	_, _, err = Reorder(ctx, db, other.ID, order.ID)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}
