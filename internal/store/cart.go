package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/pricing"
	"github.com/shopspring/decimal"
)

// GetCart returns the user's cart priced with the current tiers.
func GetCart(ctx context.Context, db database.Querier, userID int64) (*models.Cart, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.product_id, p.name, p.sku, p.image_url, p.unit, p.min_order_qty,
		       p.stock_quantity, p.is_active, c.quantity, p.price, c.updated_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	var productIDs []int64
	stock := make(map[int64]int)
	for rows.Next() {
		var item models.CartItem
		var stockQty int
		err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.ProductName,
			&item.SKU,
			&item.ImageURL,
			&item.Unit,
			&item.MinOrderQty,
			&stockQty,
			&item.IsActive,
			&item.Quantity,
			&item.BasePrice,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		stock[item.ProductID] = stockQty
		items = append(items, item)
		productIDs = append(productIDs, item.ProductID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	tiers, err := loadTiers(ctx, db, productIDs)
	if err != nil {
		return nil, err
	}

	cart := &models.Cart{Items: []models.CartItem{}, Subtotal: decimal.Zero, Savings: decimal.Zero}
	for _, item := range items {
		t := tiers[item.ProductID]
		item.UnitPrice = pricing.UnitPrice(item.BasePrice, t, item.Quantity)
		item.LineTotal = pricing.LineTotal(item.BasePrice, t, item.Quantity)
		item.NextTier = pricing.NextTier(t, item.Quantity)
		item.InStock = stock[item.ProductID] >= item.Quantity

		full := item.BasePrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		cart.Savings = cart.Savings.Add(full.Sub(item.LineTotal))
		cart.Subtotal = cart.Subtotal.Add(item.LineTotal)
		cart.Units += item.Quantity
		cart.Items = append(cart.Items, item)
	}
	cart.ItemCount = len(cart.Items)

	return cart, nil
}

// AddToCart adds quantity units of a product. Quantities below the
// product's minimum order are raised to the minimum; adding a product that
// is already in the cart increases its quantity.
func AddToCart(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (*models.Cart, error) {
	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, database.ErrProductInactive
	}

	quantity = pricing.FloorQuantity(quantity, product.MinOrderQty)

	_, err = db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}

	return GetCart(ctx, db, userID)
}

// SetCartQuantity sets the quantity of a cart line. A quantity below the
// product's minimum order removes the line; removed reports whether that
// happened.
func SetCartQuantity(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (cart *models.Cart, removed bool, err error) {
	var minOrder int
	err = db.QueryRowContext(ctx, `
		SELECT p.min_order_qty
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1 AND c.product_id = $2`, userID, productID).Scan(&minOrder)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, database.ErrCartItemNotFound
		}
		return nil, false, fmt.Errorf("get cart item: %w", err)
	}

	if !pricing.MeetsMinimum(quantity, minOrder) {
		if err := RemoveFromCart(ctx, db, userID, productID); err != nil {
			return nil, false, err
		}
		removed = true
	} else {
		_, err = db.ExecContext(ctx,
			`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE user_id = $2 AND product_id = $3`,
			quantity, userID, productID)
		if err != nil {
			return nil, false, fmt.Errorf("update cart item: %w", err)
		}
	}

	cart, err = GetCart(ctx, db, userID)
	return cart, removed, err
}

func RemoveFromCart(ctx context.Context, db *sql.DB, userID, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return expectOneRow(result, database.ErrCartItemNotFound)
}

func ClearCart(ctx context.Context, db database.Querier, userID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

type cartLine struct {
	ProductID int64
	Quantity  int
}

func cartLines(ctx context.Context, tx *sql.Tx, userID int64) ([]cartLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var l cartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return lines, nil
}
