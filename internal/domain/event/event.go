// Package event defines the immutable domain Event fanned out to live
// sessions and webhook subscribers.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Fanout/internal/domain"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeOrderCreated       Type = "order.created"
	TypeOrderUpdated       Type = "order.updated"
	TypeOrderStatusChanged Type = "order.status_changed"
	TypeOrderCancelled     Type = "order.cancelled"
	TypePaymentSucceeded   Type = "payment.succeeded"
	TypePaymentFailed      Type = "payment.failed"
	TypeProductCreated     Type = "product.created"
	TypeProductUpdated     Type = "product.updated"
	TypeProductDeleted     Type = "product.deleted"
	TypeNotification       Type = "notification"
	TypeAdmin              Type = "admin.event"
)

var validTypes = map[Type]bool{
	TypeOrderCreated:       true,
	TypeOrderUpdated:       true,
	TypeOrderStatusChanged: true,
	TypeOrderCancelled:     true,
	TypePaymentSucceeded:   true,
	TypePaymentFailed:      true,
	TypeProductCreated:     true,
	TypeProductUpdated:     true,
	TypeProductDeleted:     true,
	TypeNotification:       true,
	TypeAdmin:              true,
}

// Valid reports whether t belongs to the fixed event taxonomy.
func (t Type) Valid() bool {
	return validTypes[t]
}

// Types returns the full taxonomy in a stable order.
func Types() []Type {
	return []Type{
		TypeOrderCreated, TypeOrderUpdated, TypeOrderStatusChanged, TypeOrderCancelled,
		TypePaymentSucceeded, TypePaymentFailed,
		TypeProductCreated, TypeProductUpdated, TypeProductDeleted,
		TypeNotification, TypeAdmin,
	}
}

// Scope addresses an event to the identities and resources it concerns.
// It drives room selection and is never sent to webhook subscribers.
type Scope struct {
	UserID    string `json:"user_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

// Event is an immutable record of a domain occurrence. It is passed by value;
// Data must not be modified after construction.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Scope     Scope           `json:"scope"`
}

// New builds an Event with a fresh ID and the given timestamp. data is
// marshaled once; the resulting bytes are owned by the event.
func New(t Type, scope Scope, data any, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event data: %w", err)
	}
	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: at.UTC(),
		Data:      raw,
		Scope:     scope,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks the event carries an ID and a known type.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: event id is required", domain.ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, e.Type)
	}
	return nil
}

// Payload returns a copy of the raw event data, or JSON null when empty.
func (e Event) Payload() json.RawMessage {
	if len(e.Data) == 0 {
		return json.RawMessage("null")
	}
	out := make(json.RawMessage, len(e.Data))
	copy(out, e.Data)
	return out
}
