// Package events carries order lifecycle events between the API and the
// notification worker over RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
	TypeWalletCredited     = "wallet.credited"
	TypeReturnResolved     = "return.resolved"
)

type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	UserID      int64           `json:"user_id"`
	OrderID     int64           `json:"order_id,omitempty"`
	OrderNumber string          `json:"order_number,omitempty"`
	Status      string          `json:"status,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

func newEvent(eventType string, userID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
	}
}

func OrderPlaced(o *models.Order) Event {
	e := newEvent(TypeOrderPlaced, o.UserID)
	e.OrderID = o.ID
	e.OrderNumber = o.OrderNumber
	e.Status = o.Status
	e.Amount = o.TotalAmount
	return e
}

func OrderStatusChanged(o *models.Order) Event {
	e := OrderPlaced(o)
	e.Type = TypeOrderStatusChanged
	return e
}

func WalletCredited(userID int64, amount decimal.Decimal) Event {
	e := newEvent(TypeWalletCredited, userID)
	e.Amount = amount
	return e
}

func ReturnResolved(r *models.Return) Event {
	e := newEvent(TypeReturnResolved, r.UserID)
	e.OrderID = r.OrderID
	e.Status = r.Status
	e.Amount = r.RefundAmount
	return e
}

func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" || e.UserID == 0 {
		return e, fmt.Errorf("decode event: missing id, type or user")
	}
	return e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
