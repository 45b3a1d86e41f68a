// Package metrics provides metric recording and tracing for bikeshare.
//
// MetricRecorder is implemented by a Prometheus registry, an OpenTelemetry
// meter and a no-op recorder; the backend is chosen by configuration.
package metrics

import (
	"context"
	"time"
)

// Item types reported by RecordItem.
const (
	ItemRead     = "read"
	ItemFiltered = "filtered"
	ItemWritten  = "written"
)

// MetricRecorder records pipeline, cache, query and HTTP metrics.
type MetricRecorder interface {
	// RecordDatasetLoad records one dataset load attempt. err is nil on success.
	RecordDatasetLoad(ctx context.Context, source string, rows int, duration time.Duration, err error)
	// RecordCacheLookup records a dataset cache hit or miss.
	RecordCacheLookup(ctx context.Context, source string, hit bool)
	// RecordQuery records one query with the number of matched records.
	RecordQuery(ctx context.Context, matched int, duration time.Duration)
	// RecordItem records count items of itemType (ItemRead, ItemFiltered, ItemWritten) for a step.
	RecordItem(ctx context.Context, step, itemType string, count int)
	// RecordStepEnd records the completion of an export step.
	RecordStepEnd(ctx context.Context, step, status string, duration time.Duration)
	// RecordHTTPRequest records one served HTTP request.
	RecordHTTPRequest(ctx context.Context, route, method string, status int, duration time.Duration)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

var _ MetricRecorder = NoOpRecorder{}

// NewNoOpRecorder returns a recorder that discards everything.
func NewNoOpRecorder() MetricRecorder { return NoOpRecorder{} }

func (NoOpRecorder) RecordDatasetLoad(context.Context, string, int, time.Duration, error) {}
func (NoOpRecorder) RecordCacheLookup(context.Context, string, bool)                      {}
func (NoOpRecorder) RecordQuery(context.Context, int, time.Duration)                      {}
func (NoOpRecorder) RecordItem(context.Context, string, string, int)                      {}
func (NoOpRecorder) RecordStepEnd(context.Context, string, string, time.Duration)         {}
func (NoOpRecorder) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}
