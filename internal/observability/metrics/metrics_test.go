package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("payment_type", "one-time"),
		attribute.String("user_id", "u_123"),
		attribute.String("status", "succeeded"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheckoutIntent(context.Background(), "one-time")
	m.RecordPaymentSave(context.Background(), "one-time", "succeeded")
	m.RecordOverrideChange(context.Background(), "set")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "dojo"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCheckoutIntent(context.Background(), "subscription")
	m.RecordGatewayRetry(context.Background(), "stripe.get_price")
}
