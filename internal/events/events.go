// Package events publishes order lifecycle notifications to Kafka for the
// downstream consumers (notifications, analytics, fulfillment).
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics carrying order lifecycle events.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusUpdated = "order.status.updated"
	TopicOrderCancelled     = "order.cancelled"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Producer   string    `json:"producer"`
	Payload    any       `json:"payload"`
}

// OrderCreatedPayload announces a newly placed order.
type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	UserEmail   string          `json:"user_email,omitempty"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderStatusUpdatedPayload announces an order status transition.
type OrderStatusUpdatedPayload struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderCancelledPayload announces an order cancellation.
type OrderCancelledPayload struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	UserEmail   string    `json:"user_email,omitempty"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}
