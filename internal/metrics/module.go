package metrics

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/config"
)

func newRecorderWithLifecycle(lc fx.Lifecycle, cfg *config.Config) (MetricRecorder, error) {
	rec, shutdown, err := NewRecorder(context.Background(), cfg.Bikeshare.Observability)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return rec, nil
}

func newTracerProviderWithLifecycle(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	tp, shutdown, err := NewTracerProvider(context.Background(), cfg.Bikeshare.Observability)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return tp, nil
}

// Module provides the MetricRecorder and Tracer selected by configuration.
var Module = fx.Options(
	fx.Provide(newRecorderWithLifecycle),
	fx.Provide(newTracerProviderWithLifecycle),
	fx.Provide(NewOpenTelemetryTracer),
)
