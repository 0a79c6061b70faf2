package observability

import (
	"strings"

	"github.com/smallbiznis/dojo/internal/config"
	"github.com/smallbiznis/dojo/internal/observability/logger"
	"github.com/smallbiznis/dojo/internal/observability/metrics"
	"github.com/smallbiznis/dojo/internal/observability/tracing"
	"go.uber.org/fx"
)

// Config is the telemetry view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Telemetry   config.TelemetryConfig
	Endpoint    string
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "dojo"
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
		Endpoint:    strings.TrimSpace(cfg.OTLPEndpoint),
	}
}

// Debug is true for debug logging or any non-shared environment.
func (c Config) Debug() bool {
	if strings.EqualFold(c.Telemetry.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

func splitConfig(c Config) componentConfigs {
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         c.ServiceName,
			Environment:         c.Environment,
			Version:             c.Version,
			Level:               c.Telemetry.LogLevel,
			Format:              c.Telemetry.LogFormat,
			IncludeStackOnError: c.Debug(),
		},
		Tracing: tracing.Config{
			Enabled:          c.Telemetry.OtelEnabled,
			ServiceName:      c.ServiceName,
			ServiceVersion:   c.Version,
			Environment:      c.Environment,
			ExporterEndpoint: c.Endpoint,
			ExporterProtocol: c.Telemetry.OtelProtocol,
			SamplingRatio:    c.Telemetry.SamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          c.Telemetry.OtelEnabled,
			ExporterEndpoint: c.Endpoint,
			ExporterProtocol: c.Telemetry.OtelProtocol,
			ServiceName:      c.ServiceName,
			Environment:      c.Environment,
		},
	}
}
