package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these should panic.
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.Pushed(ctx, "order:updated", 3)
	m.JoinDenied(ctx)
	m.Published(ctx, "order.updated")
	m.Attempted(ctx, 1, false, 0.1)
	m.Exhausted(ctx, true)
	m.Dropped(ctx, 2)
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.Pushed(ctx, "order:updated", 3)
	m.Exhausted(ctx, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					got[md.Name] += dp.Value
				}
			}
		}
	}

	if got["fanout.pushes"] != 3 {
		t.Fatalf("expected 3 pushes, got %d", got["fanout.pushes"])
	}
	if got["fanout.webhooks.exhausted"] != 1 {
		t.Fatalf("expected 1 exhausted chain, got %d", got["fanout.webhooks.exhausted"])
	}
	if got["fanout.webhooks.disabled"] != 1 {
		t.Fatalf("expected 1 disabled endpoint, got %d", got["fanout.webhooks.disabled"])
	}
}
