package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	"github.com/tigerroll/bikeshare/internal/domain/entity"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// DatabaseWriterConfig holds the configuration for DatabaseWriter.
type DatabaseWriterConfig struct {
	// DatabaseRef is the name of the database connection to use.
	DatabaseRef string
	// BatchSize is the maximum number of rows per INSERT statement.
	BatchSize int
}

// ExportMetadata describes the export run recorded in rental_exports.
type ExportMetadata struct {
	ID        string
	Source    string
	Criteria  string
	StartedAt time.Time
}

// DatabaseWriter inserts enriched rows and the export record in a single
// transaction that is committed by Close.
type DatabaseWriter struct {
	name     string
	config   DatabaseWriterConfig
	resolver database.Resolver
	meta     ExportMetadata

	tx      *gorm.DB
	written int64
}

var _ port.ItemWriter[entity.EnrichedRental] = (*DatabaseWriter)(nil)

// NewDatabaseWriter validates config and creates a writer.
func NewDatabaseWriter(name string, config DatabaseWriterConfig, resolver database.Resolver, meta ExportMetadata) (*DatabaseWriter, error) {
	if config.DatabaseRef == "" {
		return nil, exception.NewPipelineErrorf("writer", "DatabaseWriter '%s' requires 'database_ref'", name)
	}
	if meta.ID == "" {
		return nil, exception.NewPipelineErrorf("writer", "DatabaseWriter '%s' requires an export ID", name)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	return &DatabaseWriter{name: name, config: config, resolver: resolver, meta: meta}, nil
}

// Open resolves the connection and begins the export transaction.
func (w *DatabaseWriter) Open(ctx context.Context) error {
	conn, err := w.resolver.ResolveConnection(ctx, w.config.DatabaseRef)
	if err != nil {
		return exception.NewPipelineError("writer",
			fmt.Sprintf("failed to resolve database connection '%s' for DatabaseWriter '%s'", w.config.DatabaseRef, w.name), err)
	}

	// The export runs in one explicit transaction; per-statement transactions would nest.
	tx := conn.DB(ctx).Session(&gorm.Session{SkipDefaultTransaction: true}).Begin()
	if tx.Error != nil {
		return exception.NewPipelineError("writer", "failed to begin export transaction", tx.Error)
	}
	w.tx = tx
	w.written = 0
	logger.Infof("DatabaseWriter '%s' opened. Connection: %s, export: %s", w.name, w.config.DatabaseRef, w.meta.ID)
	return nil
}

// Write inserts a chunk of rows inside the export transaction.
func (w *DatabaseWriter) Write(ctx context.Context, items []entity.EnrichedRental) error {
	if w.tx == nil {
		return exception.NewPipelineErrorf("writer", "DatabaseWriter '%s' is not open", w.name)
	}
	if len(items) == 0 {
		return nil
	}
	if err := w.tx.WithContext(ctx).CreateInBatches(&items, w.config.BatchSize).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return exception.NewPipelineError("writer", fmt.Sprintf("export '%s' already contains these rows", w.meta.ID), err)
		}
		return exception.NewPipelineError("writer", fmt.Sprintf("failed to insert %d rows into %s", len(items), entity.EnrichedRental{}.TableName()), err)
	}
	w.written += int64(len(items))
	logger.Debugf("DatabaseWriter '%s': inserted %d rows (total %d).", w.name, len(items), w.written)
	return nil
}

// Close records the export and commits. On failure the transaction is rolled back.
func (w *DatabaseWriter) Close(ctx context.Context) error {
	if w.tx == nil {
		return exception.NewPipelineErrorf("writer", "DatabaseWriter '%s' is not open", w.name)
	}
	tx := w.tx
	w.tx = nil

	record := entity.RentalExport{
		ID:         w.meta.ID,
		Source:     w.meta.Source,
		Criteria:   w.meta.Criteria,
		RowCount:   w.written,
		Status:     entity.ExportStatusCompleted,
		StartedAt:  w.meta.StartedAt.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		tx.Rollback()
		return exception.NewPipelineError("writer", fmt.Sprintf("failed to record export '%s'", w.meta.ID), err)
	}
	if err := tx.Commit().Error; err != nil {
		return exception.NewPipelineError("writer", fmt.Sprintf("failed to commit export '%s'", w.meta.ID), err)
	}
	logger.Infof("DatabaseWriter '%s': committed export %s with %d rows.", w.name, w.meta.ID, w.written)
	return nil
}

// Rollback aborts the export transaction.
func (w *DatabaseWriter) Rollback(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx = nil
	logger.Warnf("DatabaseWriter '%s': rolling back export %s (%d rows).", w.name, w.meta.ID, w.written)
	if err := tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		return exception.NewPipelineError("writer", "failed to roll back export transaction", err)
	}
	return nil
}

// Written returns the number of rows inserted since Open.
func (w *DatabaseWriter) Written() int64 {
	return w.written
}
