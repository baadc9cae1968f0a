package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/pricing"
	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	UserID        int64
	AddressID     int64
	PaymentMethod string
	CardID        *int64
	CouponCode    string
	Notes         string
}

func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// Checkout turns the user's cart into a pending order. The whole operation
// runs in one serializable transaction: stock, coupon usage, wallet balance
// and cart are all updated or none are.
func Checkout(ctx context.Context, db *sql.DB, req CheckoutRequest, now time.Time) (*models.Order, error) {
	if !models.IsPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	if req.PaymentMethod == models.PaymentMethodCard && req.CardID == nil {
		return nil, fmt.Errorf("%w: card_id is required for card payments", ErrValidation)
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		lines, err := cartLines(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return database.ErrEmptyCart
		}

		address, err := GetAddress(ctx, tx, req.UserID, req.AddressID)
		if err != nil {
			return err
		}

		var cardID sql.NullInt64
		if req.PaymentMethod == models.PaymentMethodCard {
			card, err := GetCard(ctx, tx, req.UserID, *req.CardID)
			if err != nil {
				return err
			}
			if cardExpired(card.ExpMonth, card.ExpYear, now) {
				return fmt.Errorf("%w: card is expired", ErrValidation)
			}
			cardID = sql.NullInt64{Int64: card.ID, Valid: true}
		}

		ids := make([]int64, len(lines))
		for i, l := range lines {
			ids[i] = l.ProductID
		}
		products, err := lockProductsNoWait(ctx, tx, ids)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(lines))
		for _, l := range lines {
			product, ok := products[l.ProductID]
			if !ok {
				return database.ErrProductNotFound
			}
			if !product.IsActive {
				return fmt.Errorf("%w: %s", database.ErrProductInactive, product.Name)
			}
			if !pricing.MeetsMinimum(l.Quantity, product.MinOrderQty) {
				return fmt.Errorf("%w: %s requires at least %d", database.ErrBelowMinimumOrder, product.Name, product.MinOrderQty)
			}
			if product.StockQuantity < l.Quantity {
				return fmt.Errorf("%w: %s", database.ErrInsufficientStock, product.Name)
			}

			unit := pricing.UnitPrice(product.Price, product.PriceTiers, l.Quantity)
			lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
			subtotal = subtotal.Add(lineTotal)

			productID := product.ID
			items = append(items, models.OrderItem{
				ProductID:   &productID,
				ProductName: product.Name,
				SKU:         product.SKU,
				Quantity:    l.Quantity,
				UnitPrice:   unit,
				Subtotal:    lineTotal,
			})
		}

		discount := decimal.Zero
		couponCode := ""
		if strings.TrimSpace(req.CouponCode) != "" {
			coupon, d, err := redeemCoupon(ctx, tx, req.CouponCode, subtotal, now)
			if err != nil {
				return err
			}
			discount = d
			couponCode = coupon.Code
		}
		total := subtotal.Sub(discount)

		orderNumber := generateOrderNumber(now)
		var orderID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (user_id, order_number, status, payment_method, payment_card_id, subtotal, discount,
			                    total_amount, coupon_code, shipping_address, notes, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW(), 1)
			RETURNING id`,
			req.UserID, orderNumber, models.OrderStatusPending, req.PaymentMethod, cardID, subtotal, discount,
			total, couponCode, FormatAddress(address), strings.TrimSpace(req.Notes)).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, sku, quantity, unit_price, subtotal, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				orderID, *item.ProductID, item.ProductName, item.SKU, item.Quantity, item.UnitPrice, item.Subtotal)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			if err := DecrementStock(ctx, tx, *item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := addStatusHistory(ctx, tx, orderID, models.OrderStatusPending, "Order placed"); err != nil {
			return err
		}

		if req.PaymentMethod == models.PaymentWallet && total.IsPositive() {
			if _, err := debitWallet(ctx, tx, req.UserID, total, orderNumber, "Payment for order "+orderNumber); err != nil {
				return err
			}
		}

		if err := ClearCart(ctx, tx, req.UserID); err != nil {
			return err
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func addStatusHistory(ctx context.Context, tx *sql.Tx, orderID int64, status, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, note, created_at) VALUES ($1, $2, $3, NOW())`,
		orderID, status, note)
	if err != nil {
		return fmt.Errorf("record status history: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, order_number, status, payment_method, payment_card_id, subtotal, discount,
	total_amount, coupon_code, shipping_address, notes, created_at, updated_at, version`

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var cardID sql.NullInt64
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.PaymentMethod,
		&cardID,
		&order.Subtotal,
		&order.Discount,
		&order.TotalAmount,
		&order.CouponCode,
		&order.ShippingAddress,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	if cardID.Valid {
		order.PaymentCardID = &cardID.Int64
	}
	return order, nil
}

// GetOrder loads an order with its items, status history and shipments.
func GetOrder(ctx context.Context, db database.Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = orderItems(ctx, db, id); err != nil {
		return nil, err
	}
	if order.History, err = orderHistory(ctx, db, id); err != nil {
		return nil, err
	}
	if order.Shipments, err = ListShipments(ctx, db, id); err != nil {
		return nil, err
	}
	return order, nil
}

// GetUserOrder is GetOrder restricted to orders owned by userID.
func GetUserOrder(ctx context.Context, db database.Querier, userID, id int64) (*models.Order, error) {
	order, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func orderItems(ctx context.Context, db database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, sku, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var productID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&productID,
			&item.ProductName,
			&item.SKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func orderHistory(ctx context.Context, db database.Querier, orderID int64) ([]models.OrderStatusHistory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order history: %w", err)
	}
	defer rows.Close()

	var history []models.OrderStatusHistory
	for rows.Next() {
		var h models.OrderStatusHistory
		if err := rows.Scan(&h.Status, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return history, nil
}

// ListOrdersCursor pages through a user's orders newest first. status may
// be empty for all orders.
func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, status, cursor string, limit int) (*CursorPage, error) {
	limit = clampLimit(limit)
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		  AND ($4::text = '' OR status = $4::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, status, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(Cursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListAllOrders is the back-office order list.
func ListAllOrders(ctx context.Context, db *sql.DB, status string, p PageRequest) (*OffsetPage, error) {
	p = p.Normalize()

	var total int64
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::text = '' OR status = $1::text)`, status).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, status, p.PageSize, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return newOffsetPage(orders, total, p), nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// transitionOrder moves a locked order to status. Cancelling restocks the
// items, refunds wallet payments and releases the coupon use.
func transitionOrder(ctx context.Context, tx *sql.Tx, order *models.Order, status, note string) error {
	if !models.CanTransition(order.Status, status) {
		return fmt.Errorf("%w: %s -> %s", database.ErrInvalidStatusChange, order.Status, status)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND version = $3`, status, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := expectOneRow(result, database.ErrOptimisticLockFailed); err != nil {
		return err
	}

	if status == models.OrderStatusCancelled {
		items, err := orderItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ProductID == nil {
				continue
			}
			if err := IncrementStock(ctx, tx, *item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if order.PaymentMethod == models.PaymentWallet && order.TotalAmount.IsPositive() {
			if _, err := creditWallet(ctx, tx, order.UserID, order.TotalAmount, order.OrderNumber,
				"Refund for cancelled order "+order.OrderNumber); err != nil {
				return err
			}
		}

		if order.CouponCode != "" {
			if err := releaseCoupon(ctx, tx, order.CouponCode); err != nil {
				return err
			}
		}
	}

	if note == "" {
		note = "Status changed to " + status
	}
	return addStatusHistory(ctx, tx, order.ID, status, note)
}

// CancelOrder cancels one of the user's own orders while it is still
// pending or confirmed.
func CancelOrder(ctx context.Context, db *sql.DB, userID, orderID int64, reason string) (*models.Order, error) {
	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return database.ErrOrderNotFound
		}

		note := "Cancelled by customer"
		if reason = strings.TrimSpace(reason); reason != "" {
			note += ": " + reason
		}
		if err := transitionOrder(ctx, tx, current, models.OrderStatusCancelled, note); err != nil {
			return err
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus is the back-office status change, guarded by the
// order's version.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, orderID int64, version int, status, note string) (*models.Order, error) {
	if !models.IsOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Version != version {
			return database.ErrOptimisticLockFailed
		}
		if err := transitionOrder(ctx, tx, current, status, note); err != nil {
			return err
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Reorder copies a past order's lines into the cart. Products that were
// removed or deactivated are skipped and counted.
func Reorder(ctx context.Context, db *sql.DB, userID, orderID int64) (*models.Cart, int, error) {
	order, err := GetUserOrder(ctx, db, userID, orderID)
	if err != nil {
		return nil, 0, err
	}

	skipped := 0
	for _, item := range order.Items {
		if item.ProductID == nil {
			skipped++
			continue
		}
		_, err := AddToCart(ctx, db, userID, *item.ProductID, item.Quantity)
		if err != nil {
			if err == database.ErrProductNotFound || err == database.ErrProductInactive {
				skipped++
				continue
			}
			return nil, 0, err
		}
	}

	cart, err := GetCart(ctx, db, userID)
	if err != nil {
		return nil, 0, err
	}
	return cart, skipped, nil
}
