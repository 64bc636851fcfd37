package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fanout"

// StartPublishSpan starts a span for one dispatcher publish.
func StartPublishSpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "publish",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.type", eventType),
		),
	)
}

// StartDeliverySpan starts a span for a single webhook attempt.
func StartDeliverySpan(ctx context.Context, eventID, endpointID string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("webhook.endpoint_id", endpointID),
			attribute.Int("webhook.attempt", attempt),
		),
	)
}
