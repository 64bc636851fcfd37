package webhook

import (
	"encoding/json"
	"time"

	"github.com/Strob0t/Fanout/internal/domain/event"
)

// HTTP headers carried by every delivery.
const (
	HeaderSignature = "X-Fanout-Signature"
	HeaderEvent     = "X-Fanout-Event"
	HeaderEventID   = "X-Fanout-Event-ID"
	HeaderAttempt   = "X-Fanout-Delivery-Attempt"
)

// Envelope is the JSON body POSTed to subscriber endpoints.
type Envelope struct {
	Event     event.Type      `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// NewEnvelope builds the envelope for e. The original event timestamp is kept
// on every attempt.
func NewEnvelope(e event.Event) Envelope {
	return Envelope{
		Event:     e.Type,
		Timestamp: e.Timestamp,
		Data:      e.Payload(),
		ID:        e.ID,
	}
}

// Attempt is one scheduled or executed call within a delivery chain. It is
// kept in memory only.
type Attempt struct {
	EventID    string
	EndpointID string
	Number     int
	Signature  string
	FireAt     time.Time
}

// RetryDelay returns the wait before attempt number+1, as a multiple of unit:
// 2, 4 and 8 units after attempts 1, 2 and 3.
func RetryDelay(number int, unit time.Duration) time.Duration {
	return unit * time.Duration(1<<number)
}

// Outcome is the result of a finished delivery chain.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeAbandoned Outcome = "abandoned"
)
