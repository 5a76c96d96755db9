package observability

import (
	"context"

	"helpcy/internal/config"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SetupObservability initializes tracing, metrics, and logging for a service.
// Disabled signals get no-op providers so callers never need nil checks.
func SetupObservability(cfg *config.OpenTelemetryConfig, serviceName, logLevel string) (result0 trace.TracerProvider, result1 *metric.MeterProvider, result2 *Logger, err error) {
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	logger := NewLoggerWithLevel(cfg, ParseLevel(logLevel))

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if cfg.EnableTracing {
		tp, err = InitStandardTracing(cfg)
		if err != nil {
			return nil, nil, nil, contextutils.WrapError(err, "failed to initialize tracing")
		}
		otel.SetTracerProvider(tp)
		logger.Info(context.Background(), "Tracing enabled", map[string]interface{}{
			"service_name": cfg.ServiceName,
			"endpoint":     cfg.Endpoint,
			"protocol":     cfg.Protocol,
		})
	}
	InitTracing()
	InitGlobalTracer()

	var mp *metric.MeterProvider
	if cfg.EnableMetrics {
		mp, err = InitMetrics(cfg)
		if err != nil {
			return nil, nil, nil, contextutils.WrapError(err, "failed to initialize metrics")
		}
		otel.SetMeterProvider(mp)
	}

	return tp, mp, logger, nil
}

// ShutdownProviders flushes whichever SDK providers were created.
func ShutdownProviders(ctx context.Context, tp trace.TracerProvider, mp *metric.MeterProvider) error {
	if sdk, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		if err := sdk.Shutdown(ctx); err != nil {
			return contextutils.WrapError(err, "failed to shutdown tracer provider")
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			return contextutils.WrapError(err, "failed to shutdown meter provider")
		}
	}
	return nil
}
