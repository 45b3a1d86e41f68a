// Package export runs the export job: the rental dataset is read, derived,
// optionally filtered and written either as partitioned Parquet files or into
// the analytics database.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	"github.com/tigerroll/bikeshare/internal/adapter/database/migration"
	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/dataset"
	"github.com/tigerroll/bikeshare/internal/domain/entity"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/step"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/step/processor"
	"github.com/tigerroll/bikeshare/internal/step/reader"
	"github.com/tigerroll/bikeshare/internal/step/writer"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// StepName is the name of the export step in logs, metrics and errors.
const StepName = "exportStep"

// Request parameterizes one export run.
type Request struct {
	// Criteria restricts the exported records. Nil exports every record.
	Criteria *model.FilterCriteria
	// Format overrides the configured format when set.
	Format string
}

// Result describes a finished export.
type Result struct {
	ExportID  string
	Format    string
	Execution *step.StepExecution
	// Objects lists the uploaded Parquet objects. Empty for the database format.
	Objects []string
}

// Job builds and runs the export step.
type Job struct {
	cfg      *config.Config
	storage  storage.Resolver
	database database.Resolver
	migrator *migration.Migrator
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewJob creates a Job. migrator may be nil when the schema is managed elsewhere.
func NewJob(cfg *config.Config, storageResolver storage.Resolver, dbResolver database.Resolver, migrator *migration.Migrator,
	recorder metrics.MetricRecorder, tracer metrics.Tracer) *Job {
	return &Job{
		cfg:      cfg,
		storage:  storageResolver,
		database: dbResolver,
		migrator: migrator,
		recorder: recorder,
		tracer:   tracer,
	}
}

// Run executes one export and returns its summary.
func (j *Job) Run(ctx context.Context, req Request) (*Result, error) {
	exportCfg := j.cfg.Bikeshare.Export
	format := strings.ToLower(req.Format)
	if format == "" {
		format = exportCfg.Format
	}

	loc, err := j.cfg.Location()
	if err != nil {
		return nil, exception.NewPipelineError("export", "invalid timezone", err)
	}
	src := dataset.SourceFromConfig(j.cfg.Bikeshare.Dataset)
	exportID := uuid.NewString()
	started := time.Now()

	criteriaLabel := "all"
	if req.Criteria != nil {
		criteriaLabel = req.Criteria.Key()
	}
	logger.Infof("Starting export %s (format: %s, source: %s, criteria: %s).", exportID, format, src, criteriaLabel)

	var (
		w       port.ItemWriter[entity.EnrichedRental]
		objects func() []string
	)
	switch format {
	case config.ExportFormatParquet:
		pw, err := writer.NewEnrichedRentalParquetWriter("parquetWriter", writer.ParquetWriterConfig{
			StorageRef:      exportCfg.StorageRef,
			Bucket:          exportCfg.Bucket,
			OutputBaseDir:   exportCfg.OutputBaseDir,
			CompressionType: exportCfg.Compression,
			Overwrite:       exportCfg.Overwrite,
			FileID:          exportID,
		}, j.storage)
		if err != nil {
			return nil, err
		}
		w, objects = pw, pw.Uploaded
	case config.ExportFormatDatabase:
		if j.database == nil {
			return nil, exception.NewPipelineErrorf("export", "no database connections are configured")
		}
		if err := j.migrate(ctx, exportCfg.DatabaseRef); err != nil {
			return nil, err
		}
		dw, err := writer.NewDatabaseWriter("databaseWriter", writer.DatabaseWriterConfig{
			DatabaseRef: exportCfg.DatabaseRef,
			BatchSize:   exportCfg.BatchSize,
		}, j.database, writer.ExportMetadata{
			ID:        exportID,
			Source:    src.String(),
			Criteria:  criteriaLabel,
			StartedAt: started,
		})
		if err != nil {
			return nil, err
		}
		w = dw
	default:
		return nil, exception.NewPipelineErrorf("export", "unsupported export format '%s'", format)
	}

	r := reader.NewRentalCSVReader(src.String(), j.opener(src), loc, j.cfg.Bikeshare.Dataset.DelimiterRune())
	p := processor.NewExportProcessor(src.String(), exportID, req.Criteria)
	s := step.NewChunkStep[model.RentalRecord, entity.EnrichedRental](StepName, r, p, w, exportCfg.ChunkSize, j.recorder, j.tracer)

	execution := step.NewStepExecution(StepName)
	if err := s.Execute(ctx, execution); err != nil {
		return &Result{ExportID: exportID, Format: format, Execution: execution}, err
	}

	result := &Result{ExportID: exportID, Format: format, Execution: execution}
	if objects != nil {
		result.Objects = objects()
	}
	logger.Infof("Export %s completed in %s: read %d, filtered %d, written %d.",
		exportID, execution.Duration(), execution.ReadCount, execution.FilterCount, execution.WriteCount)
	return result, nil
}

func (j *Job) opener(src dataset.Source) reader.Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		conn, err := j.storage.ResolveConnection(ctx, src.StorageRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage connection '%s': %w", src.StorageRef, err)
		}
		return conn.Download(ctx, src.Bucket, src.Object)
	}
}

func (j *Job) migrate(ctx context.Context, ref string) error {
	if j.migrator == nil {
		return nil
	}
	conn, err := j.database.ResolveConnection(ctx, ref)
	if err != nil {
		return exception.NewPipelineError("export", fmt.Sprintf("failed to resolve database connection '%s'", ref), err)
	}
	if err := j.migrator.Up(ctx, conn); err != nil {
		return exception.NewPipelineError("export", "schema migration failed", err)
	}
	return nil
}
