package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/pipeline"
	"github.com/tigerroll/bikeshare/internal/step/reader"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Loader reads and derives datasets.
type Loader struct {
	resolver  storage.Resolver
	location  *time.Location
	delimiter rune
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
}

// NewLoader creates a Loader. location interprets timestamps without a zone.
func NewLoader(resolver storage.Resolver, location *time.Location, delimiter rune, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Loader {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Loader{
		resolver:  resolver,
		location:  location,
		delimiter: delimiter,
		recorder:  recorder,
		tracer:    tracer,
	}
}

// Stat returns the current metadata of the source object.
func (l *Loader) Stat(ctx context.Context, src Source) (storage.ObjectInfo, error) {
	conn, err := l.resolver.ResolveConnection(ctx, src.StorageRef)
	if err != nil {
		return storage.ObjectInfo{}, exception.NewPipelineError("dataset",
			fmt.Sprintf("failed to resolve storage connection '%s'", src.StorageRef), err)
	}
	info, err := conn.Stat(ctx, src.Bucket, src.Object)
	if err != nil {
		return storage.ObjectInfo{}, exception.NewPipelineError("dataset", fmt.Sprintf("failed to stat %s", src), err)
	}
	return info, nil
}

// Load downloads, parses and derives the whole source. Either every record is
// returned or an error is; a malformed record yields a *exception.DataFormatError.
func (l *Loader) Load(ctx context.Context, src Source) (ds *Dataset, err error) {
	ctx, end := l.tracer.StartSpan(ctx, "dataset.load", map[string]interface{}{"source": src.String()})
	defer end()

	start := time.Now()
	defer func() {
		l.recorder.RecordDatasetLoad(ctx, src.Key(), ds.Len(), time.Since(start), err)
		if err != nil {
			l.tracer.RecordError(ctx, "dataset", err)
		}
	}()

	info, err := l.Stat(ctx, src)
	if err != nil {
		return nil, err
	}
	conn, err := l.resolver.ResolveConnection(ctx, src.StorageRef)
	if err != nil {
		return nil, exception.NewPipelineError("dataset",
			fmt.Sprintf("failed to resolve storage connection '%s'", src.StorageRef), err)
	}

	digest := sha256.New()
	r := reader.NewRentalCSVReader(src.String(), func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := conn.Download(ctx, src.Bucket, src.Object)
		if err != nil {
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{io.TeeReader(rc, digest), rc}, nil
	}, l.location, l.delimiter)

	rows, err := reader.ReadAll(ctx, r)
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Derive(rows)
	if err != nil {
		if dfe, ok := exception.AsDataFormatError(err); ok && dfe.Source == "" {
			dfe.Source = src.String()
		}
		return nil, err
	}

	ds = &Dataset{
		Source:  src,
		Records: records,
		Fingerprint: Fingerprint{
			ModTime: info.ModTime,
			Size:    info.Size,
			SHA256:  hex.EncodeToString(digest.Sum(nil)),
		},
		LoadedAt: time.Now(),
	}
	logger.Infof("Loaded dataset %s: %d records (sha256 %s).", src, len(records), ds.Fingerprint.SHA256)
	return ds, nil
}
