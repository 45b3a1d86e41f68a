package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/bikeshare/internal/dataset"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Request is one dashboard query. A nil Years or Seasons selects every value
// present in the dataset; a non-nil empty slice selects nothing.
type Request struct {
	Years      []int
	Seasons    []model.Season
	WorkingDay bool
}

// Response carries a Result together with what it was computed from.
type Response struct {
	RequestID string              `json:"request_id"`
	Source    string              `json:"source"`
	Dataset   dataset.Fingerprint `json:"dataset"`
	Criteria  CriteriaView        `json:"criteria"`
	Matched   int                 `json:"matched"`
	Result
}

// DatasetCache is the part of dataset.Cache used by the Service.
type DatasetCache interface {
	Get(ctx context.Context, src dataset.Source) (*dataset.Dataset, error)
	Reload(ctx context.Context, src dataset.Source) (*dataset.Dataset, error)
}

// Service answers queries against the cached dataset of one source.
type Service struct {
	cache    DatasetCache
	source   dataset.Source
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewService creates a Service.
func NewService(cache DatasetCache, source dataset.Source, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Service {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Service{cache: cache, source: source, recorder: recorder, tracer: tracer}
}

// Source returns the source the service reads.
func (s *Service) Source() dataset.Source {
	return s.source
}

// Criteria resolves req against the values offered by opts.
func (req Request) Criteria(opts Options) model.FilterCriteria {
	years, seasons := req.Years, req.Seasons
	if years == nil {
		years = opts.Years
	}
	if seasons == nil {
		seasons = opts.Seasons
	}
	return model.NewFilterCriteria(years, seasons, req.WorkingDay)
}

// Query runs req against the current dataset. A requestID is generated when empty.
func (s *Service) Query(ctx context.Context, requestID string, req Request) (*Response, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx, end := s.tracer.StartSpan(ctx, "query.run", map[string]interface{}{"request_id": requestID})
	defer end()

	ds, err := s.cache.Get(ctx, s.source)
	if err != nil {
		s.tracer.RecordError(ctx, "query", err)
		return nil, err
	}

	start := time.Now()
	criteria := req.Criteria(BuildOptions(ds.Records))
	result := Run(ds.Records, criteria)
	s.recorder.RecordQuery(ctx, len(result.Records), time.Since(start))
	logger.Debugf("Query %s (%s) matched %d of %d records.", requestID, criteria, len(result.Records), ds.Len())

	return &Response{
		RequestID: requestID,
		Source:    s.source.String(),
		Dataset:   ds.Fingerprint,
		Criteria:  NewCriteriaView(criteria),
		Matched:   len(result.Records),
		Result:    result,
	}, nil
}

// Options returns the selectable values of the current dataset.
func (s *Service) Options(ctx context.Context) (Options, error) {
	ds, err := s.cache.Get(ctx, s.source)
	if err != nil {
		return Options{}, err
	}
	return BuildOptions(ds.Records), nil
}

// Reload drops the cached dataset and loads it again.
func (s *Service) Reload(ctx context.Context) (*dataset.Dataset, error) {
	ctx, end := s.tracer.StartSpan(ctx, "dataset.reload", map[string]interface{}{"source": s.source.String()})
	defer end()
	ds, err := s.cache.Reload(ctx, s.source)
	if err != nil {
		s.tracer.RecordError(ctx, "query", err)
		return nil, err
	}
	return ds, nil
}
