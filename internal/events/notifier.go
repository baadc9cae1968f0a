package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
)

// NotificationWriter persists a user notification; duplicate eventIDs are
// ignored.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, userID int64, title, body, eventID string) (bool, error)
}

type DBNotificationWriter struct {
	DB *sql.DB
}

func (w DBNotificationWriter) CreateNotification(ctx context.Context, userID int64, title, body, eventID string) (bool, error) {
	return store.CreateNotification(ctx, w.DB, userID, title, body, eventID)
}

// Notifier turns events into in-app notifications.
type Notifier struct {
	Writer NotificationWriter
}

func (n Notifier) Handle(ctx context.Context, e Event) error {
	title, body, ok := Describe(e)
	if !ok {
		return nil
	}
	_, err := n.Writer.CreateNotification(ctx, e.UserID, title, body, e.ID)
	if err == database.ErrUserNotFound {
		// account deleted after the event was published
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify user %d: %w", e.UserID, err)
	}
	return nil
}

var statusMessages = map[string]string{
	models.OrderStatusConfirmed: "has been confirmed",
	models.OrderStatusShipped:   "is on its way",
	models.OrderStatusDelivered: "has been delivered",
	models.OrderStatusCancelled: "has been cancelled",
}

// Describe renders the notification text for an event; ok is false for
// events that do not notify the user.
func Describe(e Event) (title, body string, ok bool) {
	switch e.Type {
	case TypeOrderPlaced:
		return "Order placed",
			fmt.Sprintf("Your order %s for %s has been placed.", e.OrderNumber, e.Amount.StringFixed(2)), true
	case TypeOrderStatusChanged:
		msg, known := statusMessages[e.Status]
		if !known {
			return "", "", false
		}
		return "Order " + strings.ReplaceAll(e.Status, "_", " "),
			fmt.Sprintf("Your order %s %s.", e.OrderNumber, msg), true
	case TypeWalletCredited:
		return "Wallet topped up",
			fmt.Sprintf("%s was added to your wallet.", e.Amount.StringFixed(2)), true
	case TypeReturnResolved:
		if e.Status == models.ReturnApproved {
			body := "Your return request was approved."
			if e.Amount.IsPositive() {
				body = fmt.Sprintf("Your return request was approved and %s was refunded to your wallet.", e.Amount.StringFixed(2))
			}
			return "Return approved", body, true
		}
		return "Return rejected", "Your return request was rejected.", true
	}
	return "", "", false
}
