package observability

import (
	"github.com/smallbiznis/dojo/internal/observability/logger"
	"github.com/smallbiznis/dojo/internal/observability/metrics"
	"github.com/smallbiznis/dojo/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and billing metrics from config.Config.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig, splitConfig),
	fx.Provide(logger.New),
	fx.Provide(tracing.NewProvider),
	fx.Provide(
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the tracer provider registers itself globally; force construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
