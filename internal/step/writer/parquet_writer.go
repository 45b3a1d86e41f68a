package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/domain/entity"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

const (
	encodeParallelism int64 = 4
	// rowGroupSize is in bytes; a month partition fits in a single row group.
	rowGroupSize int64 = 128 * 1024 * 1024
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection to use.
	StorageRef string
	// Bucket overrides the connection's default bucket.
	Bucket string
	// OutputBaseDir is the object prefix for exported files (e.g., "bikeshare/enriched").
	OutputBaseDir string
	// CompressionType is the compression type for Parquet files ("SNAPPY", "GZIP", "NONE").
	CompressionType string
	// Overwrite removes every object under OutputBaseDir before uploading.
	Overwrite bool
	// FileID names the files of this run (part-<FileID>.parquet). A random UUID when empty.
	FileID string
}

// ParquetWriter buffers items by partition and uploads one Parquet file per
// partition when closed. Nothing reaches storage before Close.
type ParquetWriter[T any] struct {
	name     string
	config   ParquetWriterConfig
	resolver storage.Resolver
	// itemPrototype is a pointer to a zero-value instance of the item type, used for Parquet schema reflection.
	itemPrototype *T
	// partitionKeyFunc extracts the partition path (e.g. "year=2011/month=01") from an item.
	partitionKeyFunc func(T) (string, error)
	codec            parquet.CompressionCodec

	conn                 storage.Connection
	bufferedItems        map[string][]T
	totalRecordsBuffered int64
	uploaded             []string
}

var _ port.ItemWriter[struct{}] = (*ParquetWriter[struct{}])(nil)

// NewParquetWriter validates config and creates a writer.
func NewParquetWriter[T any](
	name string,
	config ParquetWriterConfig,
	resolver storage.Resolver,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	if config.StorageRef == "" {
		return nil, exception.NewPipelineErrorf("writer", "ParquetWriter '%s' requires 'storage_ref'", name)
	}
	if config.OutputBaseDir == "" {
		return nil, exception.NewPipelineErrorf("writer", "ParquetWriter '%s' requires 'output_base_dir'", name)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	codec, err := getCompressionCodec(config.CompressionType)
	if err != nil {
		return nil, exception.NewPipelineError("writer", fmt.Sprintf("invalid compression for ParquetWriter '%s'", name), err)
	}
	if config.FileID == "" {
		config.FileID = uuid.NewString()
	}
	config.OutputBaseDir = strings.Trim(config.OutputBaseDir, "/")

	return &ParquetWriter[T]{
		name:             name,
		config:           config,
		resolver:         resolver,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		codec:            codec,
		bufferedItems:    make(map[string][]T),
	}, nil
}

// Open resolves the storage connection and clears internal buffers.
func (w *ParquetWriter[T]) Open(ctx context.Context) error {
	conn, err := w.resolver.ResolveConnection(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewPipelineError("writer",
			fmt.Sprintf("failed to resolve storage connection '%s' for ParquetWriter '%s'", w.config.StorageRef, w.name), err)
	}
	w.conn = conn
	w.reset()
	logger.Infof("ParquetWriter '%s' opened. Target storage: %s, base directory: %s", w.name, w.config.StorageRef, w.config.OutputBaseDir)
	return nil
}

// Write buffers items under their partition key.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		key, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewPipelineError("writer", fmt.Sprintf("failed to get partition key in ParquetWriter '%s'", w.name), err)
		}
		w.bufferedItems[key] = append(w.bufferedItems[key], item)
		w.totalRecordsBuffered++
	}
	logger.Debugf("ParquetWriter '%s' buffered %d items. Total buffered: %d.", w.name, len(items), w.totalRecordsBuffered)
	return nil
}

// Close encodes every partition, then uploads the files. If any upload
// fails the files already uploaded by this run are deleted again.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	defer w.reset()
	if w.conn == nil {
		return exception.NewPipelineErrorf("writer", "ParquetWriter '%s' is not open", w.name)
	}
	w.uploaded = nil

	keys := make([]string, 0, len(w.bufferedItems))
	for key := range w.bufferedItems {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	encoded := make(map[string]*bytes.Buffer, len(keys))
	var multiErr error
	for _, key := range keys {
		buf, err := w.encode(key, w.bufferedItems[key])
		if err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		encoded[key] = buf
	}
	if multiErr != nil {
		return multiErr
	}

	if w.config.Overwrite {
		if err := w.deletePrefix(ctx); err != nil {
			return err
		}
	}

	if w.totalRecordsBuffered == 0 {
		logger.Infof("ParquetWriter '%s': no records buffered, skipping Parquet file generation.", w.name)
		return nil
	}

	for _, key := range keys {
		objectName := w.ObjectName(key)
		buf := encoded[key]
		logger.Debugf("ParquetWriter '%s': uploading %d bytes to %s/%s", w.name, buf.Len(), w.config.StorageRef, objectName)
		if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewPipelineError("writer",
				fmt.Sprintf("failed to upload Parquet file for partition '%s' to '%s'", key, objectName), err))
			break
		}
		w.uploaded = append(w.uploaded, objectName)
	}
	if multiErr != nil {
		if err := w.removeUploaded(ctx); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
		return multiErr
	}

	logger.Infof("ParquetWriter '%s': uploaded %d records in %d partitions.", w.name, w.totalRecordsBuffered, len(keys))
	return nil
}

// Rollback drops buffered items. Nothing has been uploaded before Close.
func (w *ParquetWriter[T]) Rollback(ctx context.Context) error {
	logger.Warnf("ParquetWriter '%s': rolling back %d buffered records.", w.name, w.totalRecordsBuffered)
	w.reset()
	return nil
}

// ObjectName returns the object a partition is uploaded to.
func (w *ParquetWriter[T]) ObjectName(partitionKey string) string {
	return path.Join(w.config.OutputBaseDir, partitionKey, fmt.Sprintf("part-%s.parquet", w.config.FileID))
}

// Uploaded returns the objects written by the last successful Close.
func (w *ParquetWriter[T]) Uploaded() []string {
	return append([]string(nil), w.uploaded...)
}

func (w *ParquetWriter[T]) reset() {
	w.bufferedItems = make(map[string][]T)
	w.totalRecordsBuffered = 0
}

func (w *ParquetWriter[T]) encode(key string, items []T) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	// The last argument is the number of marshalling goroutines, not a row count.
	pw, err := writer.NewParquetWriterFromWriter(buf, w.itemPrototype, encodeParallelism)
	if err != nil {
		return nil, exception.NewPipelineError("writer", fmt.Sprintf("failed to create Parquet writer for partition '%s'", key), err)
	}
	pw.CompressionType = w.codec
	pw.RowGroupSize = rowGroupSize

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, exception.NewPipelineError("writer", fmt.Sprintf("failed to write item to Parquet for partition '%s'", key), err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ParquetWriter '%s': recovered from panic during WriteStop: %v", w.name, r)
			buf, err = nil, exception.NewPipelineErrorf("writer", "Parquet writer panicked during WriteStop for partition '%s': %v", key, r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, exception.NewPipelineError("writer", fmt.Sprintf("failed to stop Parquet writer for partition '%s'", key), err)
	}
	return buf, nil
}

func (w *ParquetWriter[T]) deletePrefix(ctx context.Context) error {
	var stale []string
	err := w.conn.ListObjects(ctx, w.config.Bucket, w.config.OutputBaseDir+"/", func(objectName string) error {
		stale = append(stale, objectName)
		return nil
	})
	if err != nil {
		return exception.NewPipelineError("writer", fmt.Sprintf("failed to list objects under '%s'", w.config.OutputBaseDir), err)
	}
	for _, objectName := range stale {
		if err := w.conn.DeleteObject(ctx, w.config.Bucket, objectName); err != nil {
			return exception.NewPipelineError("writer", fmt.Sprintf("failed to delete '%s'", objectName), err)
		}
	}
	if len(stale) > 0 {
		logger.Infof("ParquetWriter '%s': removed %d previously exported objects.", w.name, len(stale))
	}
	return nil
}

func (w *ParquetWriter[T]) removeUploaded(ctx context.Context) error {
	var multiErr error
	for _, objectName := range w.uploaded {
		if err := w.conn.DeleteObject(ctx, w.config.Bucket, objectName); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	w.uploaded = nil
	return multiErr
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// NewEnrichedRentalParquetWriter creates a ParquetWriter partitioning rows by year and month.
func NewEnrichedRentalParquetWriter(name string, config ParquetWriterConfig, resolver storage.Resolver) (*ParquetWriter[entity.EnrichedRental], error) {
	return NewParquetWriter(name, config, resolver, new(entity.EnrichedRental), func(e entity.EnrichedRental) (string, error) {
		if e.Month < 1 || e.Month > 12 {
			return "", fmt.Errorf("row %d has invalid month %d", e.RowIndex, e.Month)
		}
		return e.PartitionKey(), nil
	})
}
