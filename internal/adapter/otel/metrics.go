package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fanout"

// Metrics holds all Fanout metric instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	SessionsActive      metric.Int64UpDownCounter
	Pushes              metric.Int64Counter
	JoinsDenied         metric.Int64Counter
	EventsPublished     metric.Int64Counter
	DeliveryAttempts    metric.Int64Counter
	DeliveriesExhausted metric.Int64Counter
	EndpointsDisabled   metric.Int64Counter
	RetriesDropped      metric.Int64Counter
	DeliveryDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsActive, err = meter.Int64UpDownCounter("fanout.sessions.active",
		metric.WithDescription("Number of live sessions"))
	if err != nil {
		return nil, err
	}

	m.Pushes, err = meter.Int64Counter("fanout.pushes",
		metric.WithDescription("Messages pushed to live sessions"))
	if err != nil {
		return nil, err
	}

	m.JoinsDenied, err = meter.Int64Counter("fanout.rooms.joins_denied",
		metric.WithDescription("Room joins refused by authorization"))
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("fanout.events.published",
		metric.WithDescription("Events accepted by the dispatcher"))
	if err != nil {
		return nil, err
	}

	m.DeliveryAttempts, err = meter.Int64Counter("fanout.webhooks.attempts",
		metric.WithDescription("Webhook delivery attempts"))
	if err != nil {
		return nil, err
	}

	m.DeliveriesExhausted, err = meter.Int64Counter("fanout.webhooks.exhausted",
		metric.WithDescription("Delivery chains that ran out of attempts"))
	if err != nil {
		return nil, err
	}

	m.EndpointsDisabled, err = meter.Int64Counter("fanout.webhooks.disabled",
		metric.WithDescription("Endpoints deactivated after repeated failures"))
	if err != nil {
		return nil, err
	}

	m.RetriesDropped, err = meter.Int64Counter("fanout.webhooks.retries_dropped",
		metric.WithDescription("Pending retries discarded at shutdown"))
	if err != nil {
		return nil, err
	}

	m.DeliveryDuration, err = meter.Float64Histogram("fanout.webhooks.attempt.duration_seconds",
		metric.WithDescription("Webhook attempt duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SessionOpened counts a new live session.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(ctx, 1)
}

// SessionClosed counts a closed live session.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(ctx, -1)
}

// Pushed records n pushes of a message type.
func (m *Metrics) Pushed(ctx context.Context, msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Pushes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("message.type", msgType)))
}

// JoinDenied counts a refused room join.
func (m *Metrics) JoinDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.JoinsDenied.Add(ctx, 1)
}

// Published counts an accepted event.
func (m *Metrics) Published(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// Attempted records one webhook attempt and its duration.
func (m *Metrics) Attempted(ctx context.Context, attempt int, success bool, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Int("webhook.attempt", attempt),
		attribute.Bool("webhook.success", success),
	)
	m.DeliveryAttempts.Add(ctx, 1, attrs)
	m.DeliveryDuration.Record(ctx, seconds, attrs)
}

// Exhausted counts a failed delivery chain and, when disabled is true, the
// endpoint deactivation it caused.
func (m *Metrics) Exhausted(ctx context.Context, disabled bool) {
	if m == nil {
		return
	}
	m.DeliveriesExhausted.Add(ctx, 1)
	if disabled {
		m.EndpointsDisabled.Add(ctx, 1)
	}
}

// Dropped counts retries discarded at shutdown.
func (m *Metrics) Dropped(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RetriesDropped.Add(ctx, int64(n))
}
