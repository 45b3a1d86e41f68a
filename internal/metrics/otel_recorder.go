package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OtelRecorder implements MetricRecorder with OpenTelemetry instruments.
type OtelRecorder struct {
	datasetLoads        metric.Int64Counter
	datasetLoadDuration metric.Float64Histogram
	datasetRows         metric.Int64Gauge
	cacheLookups        metric.Int64Counter
	queryDuration       metric.Float64Histogram
	queryMatched        metric.Int64Histogram
	stepItems           metric.Int64Counter
	stepDuration        metric.Float64Histogram
	httpRequests        metric.Int64Counter
	httpDuration        metric.Float64Histogram
}

var _ MetricRecorder = (*OtelRecorder)(nil)

// NewOtelRecorder creates all instruments on meter.
func NewOtelRecorder(meter metric.Meter) (*OtelRecorder, error) {
	r := &OtelRecorder{}
	var err error

	if r.datasetLoads, err = meter.Int64Counter("bikeshare.dataset.loads",
		metric.WithDescription("Dataset load attempts by source and status.")); err != nil {
		return nil, err
	}
	if r.datasetLoadDuration, err = meter.Float64Histogram("bikeshare.dataset.load.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of dataset loads.")); err != nil {
		return nil, err
	}
	if r.datasetRows, err = meter.Int64Gauge("bikeshare.dataset.rows",
		metric.WithDescription("Enriched records in the last loaded dataset.")); err != nil {
		return nil, err
	}
	if r.cacheLookups, err = meter.Int64Counter("bikeshare.dataset.cache.lookups",
		metric.WithDescription("Dataset cache lookups by result.")); err != nil {
		return nil, err
	}
	if r.queryDuration, err = meter.Float64Histogram("bikeshare.query.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of queries.")); err != nil {
		return nil, err
	}
	if r.queryMatched, err = meter.Int64Histogram("bikeshare.query.matched",
		metric.WithDescription("Records matched by a query.")); err != nil {
		return nil, err
	}
	if r.stepItems, err = meter.Int64Counter("bikeshare.step.items",
		metric.WithDescription("Items handled by export steps.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram("bikeshare.step.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of export steps.")); err != nil {
		return nil, err
	}
	if r.httpRequests, err = meter.Int64Counter("bikeshare.http.requests",
		metric.WithDescription("HTTP requests served.")); err != nil {
		return nil, err
	}
	if r.httpDuration, err = meter.Float64Histogram("bikeshare.http.request.duration",
		metric.WithUnit("s"), metric.WithDescription("Latency of HTTP requests.")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OtelRecorder) RecordDatasetLoad(ctx context.Context, source string, rows int, duration time.Duration, err error) {
	src := attribute.String("source", source)
	r.datasetLoads.Add(ctx, 1, metric.WithAttributes(src, attribute.String("status", statusLabel(err))))
	r.datasetLoadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(src))
	if err == nil {
		r.datasetRows.Record(ctx, int64(rows), metric.WithAttributes(src))
	}
}

func (r *OtelRecorder) RecordCacheLookup(ctx context.Context, source string, hit bool) {
	r.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("hit", hit),
	))
}

func (r *OtelRecorder) RecordQuery(ctx context.Context, matched int, duration time.Duration) {
	r.queryDuration.Record(ctx, duration.Seconds())
	r.queryMatched.Record(ctx, int64(matched))
}

func (r *OtelRecorder) RecordItem(ctx context.Context, step, itemType string, count int) {
	r.stepItems.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("type", itemType),
	))
}

func (r *OtelRecorder) RecordStepEnd(ctx context.Context, step, status string, duration time.Duration) {
	r.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

func (r *OtelRecorder) RecordHTTPRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("code", status),
	)
	r.httpRequests.Add(ctx, 1, attrs)
	r.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
