package service

import (
	"context"
	"log/slog"

	cfotel "github.com/Strob0t/Fanout/internal/adapter/otel"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
	"github.com/Strob0t/Fanout/internal/port/broadcast"
)

// DeliveryScheduler queues webhook delivery chains.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, e event.Event, endpoints []webhook.Endpoint)
}

// EventDispatcher is the single publish entry point. It pushes an event to
// the live rooms it addresses and schedules one webhook delivery per
// subscribed endpoint.
type EventDispatcher struct {
	rooms      broadcast.Broadcaster
	registry   *WebhookRegistry
	deliveries DeliveryScheduler
	metrics    *cfotel.Metrics
}

// NewEventDispatcher creates an EventDispatcher.
func NewEventDispatcher(rooms broadcast.Broadcaster, registry *WebhookRegistry, deliveries DeliveryScheduler, metrics *cfotel.Metrics) *EventDispatcher {
	return &EventDispatcher{rooms: rooms, registry: registry, deliveries: deliveries, metrics: metrics}
}

// Publish fans e out. Live pushes happen before Publish returns; webhook
// deliveries run later. Only an invalid event is reported as an error.
func (d *EventDispatcher) Publish(ctx context.Context, e event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	ctx, span := cfotel.StartPublishSpan(ctx, e.ID, string(e.Type))
	defer span.End()

	pushed := 0
	if rooms := event.Rooms(e); len(rooms) > 0 {
		msg, err := event.LiveMessage(e)
		if err != nil {
			slog.Error("live message build failed", "event_id", e.ID, "type", e.Type, "error", err)
		} else {
			pushed = d.rooms.Broadcast(ctx, msg, rooms...)
		}
	}

	endpoints, err := d.registry.ListForEvent(ctx, e.Type)
	if err != nil {
		slog.Warn("webhook lookup failed, skipping deliveries", "event_id", e.ID, "type", e.Type, "error", err)
	} else {
		d.deliveries.Schedule(ctx, e, endpoints)
	}

	d.metrics.Published(ctx, string(e.Type))
	slog.Debug("event published", "event_id", e.ID, "type", e.Type, "pushes", pushed, "webhooks", len(endpoints))
	return nil
}
