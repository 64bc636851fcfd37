package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is the envelope for every message exchanged with a live session.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Server to client message types.
const (
	MsgOrderCreated       = "order:created"
	MsgOrderUpdated       = "order:updated"
	MsgOrderStatusChanged = "order:status-changed"
	MsgOrderCancelled     = "order:cancelled"
	MsgPaymentUpdated     = "payment:updated"
	MsgNotification       = "notification"
	MsgProductCreated     = "product:created"
	MsgProductUpdated     = "product:updated"
	MsgProductDeleted     = "product:deleted"
	MsgAdminEvent         = "admin:event"
	MsgSubscriptionAck    = "subscription:ack"
	MsgSubscriptionError  = "subscription:error"
	MsgNotificationRead   = "notification:read"
	MsgPong               = "pong"
	MsgError              = "error"
)

// Client to server message types.
const (
	MsgOrderSubscribe   = "order:subscribe"
	MsgOrderUnsubscribe = "order:unsubscribe"
	MsgMarkRead         = "notification:read"
	MsgPing             = "ping"
)

// OrderPayload is pushed for order and payment events.
type OrderPayload struct {
	OrderID   string          `json:"orderId"`
	Status    string          `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NotificationPayload is pushed for user notifications.
type NotificationPayload struct {
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProductPayload is pushed for catalog changes.
type ProductPayload struct {
	ProductID string          `json:"productId"`
	Changes   json.RawMessage `json:"changes"`
	Timestamp time.Time       `json:"timestamp"`
}

// AdminPayload is pushed to admin sessions.
type AdminPayload struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// SubscriptionAck confirms a room join or leave.
type SubscriptionAck struct {
	Room       string `json:"room"`
	Subscribed bool   `json:"subscribed"`
}

// SubscriptionError reports a refused room join.
type SubscriptionError struct {
	Room  string `json:"room"`
	Error string `json:"error"`
}

// ErrorPayload reports a malformed or unsupported client message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PongPayload answers a client ping.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest is sent by clients to (un)subscribe from an order room.
type OrderRequest struct {
	OrderID string `json:"orderId"`
}

// MarkReadRequest is sent by clients to acknowledge a notification.
type MarkReadRequest struct {
	NotificationID string `json:"notificationId"`
}

// NewMessage marshals payload into a Message of the given type.
func NewMessage(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Encode marshals a message to its wire form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// LiveMessage converts a domain event into the message pushed to sessions.
func LiveMessage(e Event) (Message, error) {
	switch e.Type {
	case TypeOrderCreated, TypeOrderUpdated, TypeOrderCancelled:
		return NewMessage(liveOrderType(e.Type), OrderPayload{
			OrderID:   e.Scope.OrderID,
			Status:    statusOf(e),
			Timestamp: e.Timestamp,
			Data:      e.Payload(),
		})
	case TypeOrderStatusChanged:
		return NewMessage(MsgOrderStatusChanged, OrderPayload{
			OrderID:   e.Scope.OrderID,
			Status:    statusOf(e),
			Timestamp: e.Timestamp,
		})
	case TypePaymentSucceeded, TypePaymentFailed:
		status := statusOf(e)
		if status == "" {
			status = strings.TrimPrefix(string(e.Type), "payment.")
		}
		return NewMessage(MsgPaymentUpdated, OrderPayload{
			OrderID:   e.Scope.OrderID,
			Status:    status,
			Timestamp: e.Timestamp,
			Data:      e.Payload(),
		})
	case TypeNotification:
		var n struct {
			Type    string          `json:"type"`
			Title   string          `json:"title"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(e.Data, &n)
		return NewMessage(MsgNotification, NotificationPayload{
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Data:      n.Data,
			Timestamp: e.Timestamp,
		})
	case TypeProductCreated, TypeProductUpdated, TypeProductDeleted:
		return NewMessage(liveProductType(e.Type), ProductPayload{
			ProductID: e.Scope.ProductID,
			Changes:   e.Payload(),
			Timestamp: e.Timestamp,
		})
	case TypeAdmin:
		var a struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(e.Data, &a)
		if a.Event == "" {
			a.Event = string(TypeAdmin)
			a.Data = e.Payload()
		}
		return NewMessage(MsgAdminEvent, AdminPayload{
			Event:     a.Event,
			Data:      a.Data,
			Timestamp: e.Timestamp,
		})
	}
	return Message{}, fmt.Errorf("no live message for event type %q", e.Type)
}

func liveOrderType(t Type) string {
	switch t {
	case TypeOrderCreated:
		return MsgOrderCreated
	case TypeOrderCancelled:
		return MsgOrderCancelled
	default:
		return MsgOrderUpdated
	}
}

func liveProductType(t Type) string {
	switch t {
	case TypeProductCreated:
		return MsgProductCreated
	case TypeProductDeleted:
		return MsgProductDeleted
	default:
		return MsgProductUpdated
	}
}

// statusOf extracts the "status" field from event data when present.
func statusOf(e Event) string {
	var s struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(e.Data, &s)
	return s.Status
}
