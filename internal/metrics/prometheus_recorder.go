package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements MetricRecorder over a private Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	datasetLoads        *prometheus.CounterVec
	datasetLoadDuration *prometheus.HistogramVec
	datasetRows         *prometheus.GaugeVec
	cacheLookups        *prometheus.CounterVec
	queryDuration       prometheus.Histogram
	queryMatched        prometheus.Histogram
	stepItems           *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

var _ MetricRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with Go runtime and process collectors registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		datasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeshare_dataset_loads_total",
			Help: "Dataset load attempts by source and status.",
		}, []string{"source", "status"}),
		datasetLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bikeshare_dataset_load_duration_seconds",
			Help:    "Duration of dataset loads (download, parse and derive).",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		datasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bikeshare_dataset_rows",
			Help: "Number of enriched records in the last successfully loaded dataset.",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeshare_dataset_cache_lookups_total",
			Help: "Dataset cache lookups by source and result.",
		}, []string{"source", "result"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bikeshare_query_duration_seconds",
			Help:    "Duration of filter and aggregation queries.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		queryMatched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bikeshare_query_matched_records",
			Help:    "Number of records matched by a query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}),
		stepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeshare_step_items_total",
			Help: "Items handled by export steps by type (read, filtered, written).",
		}, []string{"step", "type"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bikeshare_step_duration_seconds",
			Help:    "Duration of export steps.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeshare_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bikeshare_http_request_duration_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	registry.MustRegister(
		r.datasetLoads,
		r.datasetLoadDuration,
		r.datasetRows,
		r.cacheLookups,
		r.queryDuration,
		r.queryMatched,
		r.stepItems,
		r.stepDuration,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordDatasetLoad(ctx context.Context, source string, rows int, duration time.Duration, err error) {
	r.datasetLoads.WithLabelValues(source, statusLabel(err)).Inc()
	r.datasetLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err == nil {
		r.datasetRows.WithLabelValues(source).Set(float64(rows))
	}
}

func (r *PrometheusRecorder) RecordCacheLookup(ctx context.Context, source string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(source, result).Inc()
}

func (r *PrometheusRecorder) RecordQuery(ctx context.Context, matched int, duration time.Duration) {
	r.queryDuration.Observe(duration.Seconds())
	r.queryMatched.Observe(float64(matched))
}

func (r *PrometheusRecorder) RecordItem(ctx context.Context, step, itemType string, count int) {
	r.stepItems.WithLabelValues(step, itemType).Add(float64(count))
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, step, status string, duration time.Duration) {
	r.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordHTTPRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
