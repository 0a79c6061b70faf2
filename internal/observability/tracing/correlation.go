package tracing

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type correlationKey struct{}

// CorrelationID returns the correlation id carried by ctx.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(correlationKey{}).(string)
	return value
}

// WithCorrelationID stores id on ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation id on ctx, generating a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	id := CorrelationID(ctx)
	if id == "" {
		id = ulid.Make().String()
	}
	return WithCorrelationID(ctx, id), id
}

type correlationSpanProcessor struct{}

func (correlationSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := CorrelationID(ctx); id != "" {
		s.SetAttributes(attribute.String("correlation_id", id))
	}
}

func (correlationSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (correlationSpanProcessor) Shutdown(context.Context) error { return nil }

func (correlationSpanProcessor) ForceFlush(context.Context) error { return nil }
