package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// ShutdownFunc flushes and releases an exporter pipeline.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

func serviceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// NewRecorder builds the MetricRecorder selected by cfg.Metrics.Backend.
func NewRecorder(ctx context.Context, cfg config.ObservabilityConfig) (MetricRecorder, ShutdownFunc, error) {
	switch cfg.Metrics.Backend {
	case config.MetricsBackendPrometheus, "":
		logger.Debugf("Metrics: using Prometheus registry.")
		return NewPrometheusRecorder(), noopShutdown, nil
	case config.MetricsBackendNoop:
		return NewNoOpRecorder(), noopShutdown, nil
	case config.MetricsBackendOtel:
		exporter, err := newMetricExporter(ctx, cfg.Metrics)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		interval := config.Seconds(cfg.Metrics.ExportIntervalSeconds)
		if interval <= 0 {
			interval = 15 * time.Second
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(serviceResource(cfg.ServiceName)),
		)
		otel.SetMeterProvider(mp)
		rec, err := NewOtelRecorder(mp.Meter("github.com/tigerroll/bikeshare"))
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, nil, err
		}
		logger.Infof("Metrics: exporting OTLP/%s to %s every %s.", cfg.Metrics.Protocol, cfg.Metrics.Endpoint, interval)
		return rec, mp.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metrics backend '%s'", cfg.Metrics.Backend)
	}
}

func newMetricExporter(ctx context.Context, cfg config.MetricsConfig) (sdkmetric.Exporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.Protocol)
	}
}

// NewTracerProvider builds the trace provider selected by cfg.Tracing.Exporter.
// The "none" exporter yields a no-op provider.
func NewTracerProvider(ctx context.Context, cfg config.ObservabilityConfig) (trace.TracerProvider, ShutdownFunc, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Tracing.Exporter {
	case config.TracingExporterNone, "":
		return noop.NewTracerProvider(), noopShutdown, nil
	case config.TracingExporterOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint)}
		if cfg.Tracing.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case config.TracingExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint)}
		if cfg.Tracing.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter '%s'", cfg.Tracing.Exporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.ServiceName)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Infof("Tracing: exporting spans via %s to %s.", cfg.Tracing.Exporter, cfg.Tracing.Endpoint)
	return tp, tp.Shutdown, nil
}

// Handler returns the scrape handler of rec, or nil when rec exposes none.
func Handler(rec MetricRecorder) http.Handler {
	if h, ok := rec.(interface{ Handler() http.Handler }); ok {
		return h.Handler()
	}
	return nil
}
