package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tigerroll/bikeshare/internal/config"
)

func TestPrometheusRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewPrometheusRecorder()

	rec.RecordDatasetLoad(ctx, "dataset/train.csv", 42, time.Millisecond, nil)
	rec.RecordDatasetLoad(ctx, "dataset/train.csv", 0, time.Millisecond, errors.New("boom"))
	rec.RecordCacheLookup(ctx, "dataset/train.csv", true)
	rec.RecordCacheLookup(ctx, "dataset/train.csv", true)
	rec.RecordCacheLookup(ctx, "dataset/train.csv", false)
	rec.RecordItem(ctx, "export", ItemRead, 10)
	rec.RecordItem(ctx, "export", ItemFiltered, 3)
	rec.RecordHTTPRequest(ctx, "/api/v1/query", http.MethodGet, http.StatusOK, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.datasetLoads.WithLabelValues("dataset/train.csv", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.datasetLoads.WithLabelValues("dataset/train.csv", "failed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(rec.datasetRows.WithLabelValues("dataset/train.csv")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("dataset/train.csv", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("dataset/train.csv", "miss")))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.stepItems.WithLabelValues("export", ItemRead)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.httpRequests.WithLabelValues("/api/v1/query", "GET", "200")))

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotNil(t, Handler(rec))
	assert.Nil(t, Handler(NewNoOpRecorder()))
}

func TestOtelRecorder(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	rec, err := NewOtelRecorder(mp.Meter("test"))
	require.NoError(t, err)

	rec.RecordCacheLookup(ctx, "dataset/train.csv", false)
	rec.RecordQuery(ctx, 7, 2*time.Millisecond)
	rec.RecordStepEnd(ctx, "export", "completed", time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["bikeshare.dataset.cache.lookups"])
	assert.True(t, names["bikeshare.query.duration"])
	assert.True(t, names["bikeshare.query.matched"])
	assert.True(t, names["bikeshare.step.duration"])
	assert.False(t, names["bikeshare.http.requests"], "instruments without measurements are not exported")
}

func TestOpenTelemetryTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	ctx, end := tracer.StartSpan(context.Background(), "query", map[string]interface{}{
		"years":    []int{2011},
		"matched":  3,
		"criteria": "working_day=true",
	})
	tracer.RecordEvent(ctx, "cache.hit", map[string]interface{}{"source": "dataset/train.csv"})
	tracer.RecordError(ctx, "query", errors.New("boom"))
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "query", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	var events []string
	for _, e := range span.Events() {
		events = append(events, e.Name)
	}
	assert.Contains(t, events, "cache.hit")
	assert.Contains(t, events, "exception")
}

func TestNoOpTracer(t *testing.T) {
	ctx := context.Background()
	got, end := NewNoOpTracer().StartSpan(ctx, "x", nil)
	assert.Equal(t, ctx, got)
	end()
}

func TestNewRecorderSelection(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig().Bikeshare.Observability

	rec, shutdown, err := NewRecorder(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &PrometheusRecorder{}, rec)
	assert.NoError(t, shutdown(ctx))

	cfg.Metrics.Backend = config.MetricsBackendNoop
	rec, _, err = NewRecorder(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, NoOpRecorder{}, rec)

	cfg.Metrics.Backend = "statsd"
	_, _, err = NewRecorder(ctx, cfg)
	assert.ErrorContains(t, err, "unsupported metrics backend 'statsd'")

	cfg.Metrics.Backend = config.MetricsBackendOtel
	cfg.Metrics.Protocol = "carrier-pigeon"
	_, _, err = NewRecorder(ctx, cfg)
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestNewTracerProviderSelection(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig().Bikeshare.Observability

	tp, shutdown, err := NewTracerProvider(ctx, cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, shutdown(ctx))

	cfg.Tracing.Exporter = "jaeger"
	_, _, err = NewTracerProvider(ctx, cfg)
	assert.ErrorContains(t, err, "unsupported tracing exporter 'jaeger'")
}
