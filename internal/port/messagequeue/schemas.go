package messagequeue

import (
	"encoding/json"
	"time"
)

// EventPayload is the schema for events.{type} messages.
type EventPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"user_id,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
}

// ReadReceiptPayload is the schema for notifications.read messages.
type ReadReceiptPayload struct {
	UserID         string    `json:"user_id"`
	NotificationID string    `json:"notification_id"`
	ReadAt         time.Time `json:"read_at"`
}
