package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/port/messagequeue"
)

// Publisher is the publish entry point the ingestor feeds.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// EventIngestor turns queue messages published by other modules into
// dispatched events.
type EventIngestor struct {
	queue     messagequeue.Queue
	publisher Publisher
	clock     clockwork.Clock
}

// NewEventIngestor creates an ingestor. A nil clock uses the real clock.
func NewEventIngestor(queue messagequeue.Queue, publisher Publisher, clock clockwork.Clock) *EventIngestor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventIngestor{queue: queue, publisher: publisher, clock: clock}
}

// Start subscribes to every event subject. The returned function stops the
// subscription.
func (i *EventIngestor) Start(ctx context.Context) (func(), error) {
	stop, err := i.queue.Subscribe(ctx, messagequeue.SubjectEventsAll, i.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectEventsAll, err)
	}
	slog.Info("event ingestion started", "subject", messagequeue.SubjectEventsAll)
	return stop, nil
}

// Handle decodes one queue message and publishes it. Events that can never
// be published are logged and acknowledged rather than retried.
func (i *EventIngestor) Handle(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.EventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.WarnContext(ctx, "dropping undecodable event", "subject", subject, "error", err)
		return nil
	}

	e := event.Event{
		ID:        p.ID,
		Type:      event.Type(p.Type),
		Timestamp: p.Timestamp.UTC(),
		Data:      p.Data,
		Scope:     event.Scope{UserID: p.UserID, OrderID: p.OrderID, ProductID: p.ProductID},
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = i.clock.Now().UTC()
	}

	if err := i.publisher.Publish(ctx, e); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			slog.WarnContext(ctx, "dropping invalid event", "subject", subject, "event_id", e.ID, "error", err)
			return nil
		}
		return err
	}
	return nil
}
