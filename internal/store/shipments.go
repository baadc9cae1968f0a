package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

const shipmentColumns = `id, order_id, carrier, tracking_number, status, shipped_at, delivered_at, created_at`

func scanShipment(row rowScanner) (*models.Shipment, error) {
	s := &models.Shipment{}
	var delivered sql.NullTime
	if err := row.Scan(&s.ID, &s.OrderID, &s.Carrier, &s.TrackingNumber, &s.Status,
		&s.ShippedAt, &delivered, &s.CreatedAt); err != nil {
		return nil, err
	}
	if delivered.Valid {
		s.DeliveredAt = &delivered.Time
	}
	return s, nil
}

func ListShipments(ctx context.Context, db database.Querier, orderID int64) ([]models.Shipment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+shipmentColumns+` FROM shipments
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []models.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return shipments, nil
}

// CreateShipment hands a confirmed order to a carrier and marks it shipped.
func CreateShipment(ctx context.Context, db *sql.DB, orderID int64, carrier, trackingNumber string) (*models.Shipment, *models.Order, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" || trackingNumber == "" {
		return nil, nil, fmt.Errorf("%w: carrier and tracking number are required", ErrValidation)
	}

	var shipment *models.Shipment
	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("Shipped with %s, tracking %s", carrier, trackingNumber)
		if err := transitionOrder(ctx, tx, current, models.OrderStatusShipped, note); err != nil {
			return err
		}

		shipment, err = scanShipment(tx.QueryRowContext(ctx, `
			INSERT INTO shipments (order_id, carrier, tracking_number, status, shipped_at, created_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			RETURNING `+shipmentColumns,
			orderID, carrier, trackingNumber, models.ShipmentInTransit))
		if err != nil {
			return fmt.Errorf("create shipment: %w", err)
		}

		order, err = GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return shipment, order, nil
}

// MarkShipmentDelivered closes the shipment and moves its order to delivered.
func MarkShipmentDelivered(ctx context.Context, db *sql.DB, shipmentID int64) (*models.Shipment, *models.Order, error) {
	var shipment *models.Shipment
	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := scanShipment(tx.QueryRowContext(ctx,
			`SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID))
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrShipmentNotFound
			}
			return fmt.Errorf("lock shipment: %w", err)
		}
		if current.Status == models.ShipmentDelivered {
			return fmt.Errorf("%w: shipment already delivered", database.ErrInvalidStatusChange)
		}

		shipment, err = scanShipment(tx.QueryRowContext(ctx, `
			UPDATE shipments SET status = $1, delivered_at = NOW()
			WHERE id = $2
			RETURNING `+shipmentColumns, models.ShipmentDelivered, shipmentID))
		if err != nil {
			return fmt.Errorf("update shipment: %w", err)
		}

		o, err := lockOrder(ctx, tx, current.OrderID)
		if err != nil {
			return err
		}
		if o.Status == models.OrderStatusShipped {
			if err := transitionOrder(ctx, tx, o, models.OrderStatusDelivered, "Delivered by "+current.Carrier); err != nil {
				return err
			}
		}

		order, err = GetOrder(ctx, tx, current.OrderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return shipment, order, nil
}
