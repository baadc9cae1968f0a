package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func seedUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	n := nextSeq()
	user, err := CreateUser(context.Background(), db, CreateUserParams{
		Phone:        fmt.Sprintf("+99890%07d", n),
		Name:         fmt.Sprintf("Buyer %d", n),
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return user
}

func seedAddress(t *testing.T, db *sql.DB, userID int64) *models.Address {
	t.Helper()
	address, err := CreateAddress(context.Background(), db, userID, AddressParams{
		Label:     "Shop",
		Recipient: "Receiver",
		Phone:     "+998901112233",
		Line1:     "12 Market St",
		City:      "Tashkent",
	})
	require.NoError(t, err)
	return address
}

func seedCard(t *testing.T, db *sql.DB, userID int64) *models.PaymentCard {
	t.Helper()
	now := time.Now()
	card, err := CreateCard(context.Background(), db, userID, CardParams{
		Number:     "4242 4242 4242 4242",
		HolderName: "Card Holder",
		ExpMonth:   12,
		ExpYear:    now.Year() + 3,
	}, now)
	require.NoError(t, err)
	return card
}

type productOpt func(*ProductParams)

func withTiers(tiers ...models.PriceTier) productOpt {
	return func(p *ProductParams) { p.PriceTiers = tiers }
}

func withMinOrder(n int) productOpt {
	return func(p *ProductParams) { p.MinOrderQty = n }
}

func withStock(n int) productOpt {
	return func(p *ProductParams) { p.StockQuantity = n }
}

func seedProduct(t *testing.T, db *sql.DB, name, price string, opts ...productOpt) *models.Product {
	t.Helper()
	p := ProductParams{
		SKU:           fmt.Sprintf("SKU-%d", nextSeq()),
		Name:          name,
		Price:         money(price),
		Unit:          "box",
		MinOrderQty:   1,
		StockQuantity: 100,
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	product, err := CreateProduct(context.Background(), db, p)
	require.NoError(t, err)
	return product
}

func stockOf(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	product, err := GetProduct(context.Background(), db, productID)
	require.NoError(t, err)
	return product.StockQuantity
}
