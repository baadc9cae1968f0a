package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
)

const returnColumns = `id, order_id, user_id, reason, status, refund_amount, admin_note, created_at, updated_at`

func scanReturn(row rowScanner) (*models.Return, error) {
	r := &models.Return{}
	err := row.Scan(&r.ID, &r.OrderID, &r.UserID, &r.Reason, &r.Status, &r.RefundAmount,
		&r.AdminNote, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// RequestReturn opens a return for a delivered order. Only one open
// request per order is allowed.
func RequestReturn(ctx context.Context, db *sql.DB, userID, orderID int64, reason string) (*models.Return, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	order, err := GetUserOrder(ctx, db, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: only delivered orders can be returned", database.ErrInvalidStatusChange)
	}

	r, err := scanReturn(db.QueryRowContext(ctx, `
		INSERT INTO returns (order_id, user_id, reason, status, refund_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		RETURNING `+returnColumns, orderID, userID, reason, models.ReturnRequested))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a return is already open for this order", database.ErrDuplicate)
		}
		return nil, fmt.Errorf("create return: %w", err)
	}
	return r, nil
}

// ResolveReturn approves or rejects an open return. Approving with a
// positive refund credits the customer's wallet. Refunds across all of an
// order's approved returns may not exceed the order total.
func ResolveReturn(ctx context.Context, db *sql.DB, returnID int64, approve bool, refund decimal.Decimal, note string) (*models.Return, error) {
	if refund.IsNegative() {
		return nil, fmt.Errorf("%w: refund cannot be negative", ErrValidation)
	}
	if !approve {
		refund = decimal.Zero
	}
	refund = refund.Round(2)

	var resolved *models.Return
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := scanReturn(tx.QueryRowContext(ctx,
			`SELECT `+returnColumns+` FROM returns WHERE id = $1 FOR UPDATE`, returnID))
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrReturnNotFound
			}
			return fmt.Errorf("lock return: %w", err)
		}
		if current.Status != models.ReturnRequested {
			return fmt.Errorf("%w: return already %s", database.ErrInvalidStatusChange, current.Status)
		}

		order, err := GetOrder(ctx, tx, current.OrderID)
		if err != nil {
			return err
		}
		var refunded decimal.Decimal
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(refund_amount), 0) FROM returns
			WHERE order_id = $1 AND status = $2`, order.ID, models.ReturnApproved).Scan(&refunded); err != nil {
			return fmt.Errorf("sum refunds: %w", err)
		}
		if refunded.Add(refund).GreaterThan(order.TotalAmount) {
			return fmt.Errorf("%w: refund exceeds remaining order total %s",
				ErrValidation, order.TotalAmount.Sub(refunded).StringFixed(2))
		}

		status := models.ReturnRejected
		if approve {
			status = models.ReturnApproved
		}

		resolved, err = scanReturn(tx.QueryRowContext(ctx, `
			UPDATE returns SET status = $1, refund_amount = $2, admin_note = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING `+returnColumns, status, refund, strings.TrimSpace(note), returnID))
		if err != nil {
			return fmt.Errorf("update return: %w", err)
		}

		if refund.IsPositive() {
			if _, err := creditWallet(ctx, tx, current.UserID, refund, order.OrderNumber,
				"Refund for returned order "+order.OrderNumber); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ListReturns lists returns newest first. userID 0 lists every customer's
// returns; status may be empty.
func ListReturns(ctx context.Context, db *sql.DB, userID int64, status string) ([]models.Return, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+returnColumns+` FROM returns
		WHERE ($1::bigint = 0 OR user_id = $1::bigint)
		  AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC, id DESC`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	returns := []models.Return{}
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		returns = append(returns, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return returns, nil
}
