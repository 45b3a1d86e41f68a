// Package step runs the chunk-oriented export step: items are read one at a
// time, processed, buffered into chunks and handed to a writer. A step is
// all-or-nothing: any failure rolls the writer back.
package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Status is the outcome of a step execution.
type Status string

const (
	StatusStarting  Status = "STARTING"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// StepExecution holds the statistics of one step run.
type StepExecution struct {
	StepName    string
	Status      Status
	StartTime   time.Time
	EndTime     time.Time
	ReadCount   int
	FilterCount int
	WriteCount  int
	CommitCount int
	Failure     error
}

// NewStepExecution creates an execution in the STARTING state.
func NewStepExecution(stepName string) *StepExecution {
	return &StepExecution{StepName: stepName, Status: StatusStarting}
}

// Duration returns the elapsed time of a finished execution.
func (e *StepExecution) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return time.Since(e.StartTime)
	}
	return e.EndTime.Sub(e.StartTime)
}

func (e *StepExecution) markStarted() {
	e.Status = StatusStarted
	e.StartTime = time.Now()
}

func (e *StepExecution) finish(err error) {
	e.EndTime = time.Now()
	if err != nil {
		e.Status = StatusFailed
		e.Failure = err
		return
	}
	e.Status = StatusCompleted
}

// ChunkStep is a chunk-oriented step over typed reader, processor and writer.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	chunkSize int

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewChunkStep creates a step. A non-positive chunkSize means one item per chunk.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *ChunkStep[I, O] {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		chunkSize:      chunkSize,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// Execute runs the step to completion. On error the writer is rolled back
// and the returned error is a *exception.PipelineError wrapping the cause.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, execution *StepExecution) (err error) {
	ctx, end := s.tracer.StartSpan(ctx, "step."+s.name, map[string]interface{}{"chunk_size": s.chunkSize})
	defer end()

	logger.Infof("ChunkStep '%s' executing.", s.name)
	execution.markStarted()
	defer func() {
		execution.finish(err)
		s.metricRecorder.RecordStepEnd(ctx, s.name, string(execution.Status), execution.Duration())
		if err != nil {
			s.tracer.RecordError(ctx, s.name, err)
			logger.Errorf("ChunkStep '%s' failed after reading %d items: %v", s.name, execution.ReadCount, err)
			return
		}
		logger.Infof("ChunkStep '%s' completed. read=%d filtered=%d written=%d commits=%d duration=%s",
			s.name, execution.ReadCount, execution.FilterCount, execution.WriteCount, execution.CommitCount, execution.Duration())
	}()

	if err := s.reader.Open(ctx); err != nil {
		return exception.NewPipelineError(s.name, "failed to open ItemReader", err)
	}
	if err := s.writer.Open(ctx); err != nil {
		_ = s.reader.Close(ctx)
		return exception.NewPipelineError(s.name, "failed to open ItemWriter", err)
	}

	if runErr := s.run(ctx, execution); runErr != nil {
		if rbErr := s.writer.Rollback(ctx); rbErr != nil {
			logger.Errorf("ChunkStep '%s': rollback failed: %v", s.name, rbErr)
		}
		if cErr := s.reader.Close(ctx); cErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, cErr)
		}
		return runErr
	}

	if err := s.reader.Close(ctx); err != nil {
		_ = s.writer.Rollback(ctx)
		return exception.NewPipelineError(s.name, "failed to close ItemReader", err)
	}
	if err := s.writer.Close(ctx); err != nil {
		return exception.NewPipelineError(s.name, "failed to commit ItemWriter", err)
	}
	execution.CommitCount++
	return nil
}

func (s *ChunkStep[I, O]) run(ctx context.Context, execution *StepExecution) error {
	for {
		chunk := make([]O, 0, s.chunkSize)
		eof := false
		read, filtered := 0, 0

		for len(chunk) < s.chunkSize {
			if err := ctx.Err(); err != nil {
				return exception.NewPipelineError(s.name, "step interrupted", err)
			}
			item, err := s.reader.Read(ctx)
			if errors.Is(err, port.ErrNoMoreItems) {
				eof = true
				break
			}
			if err != nil {
				return exception.NewPipelineError(s.name, fmt.Sprintf("item read failed after %d items", execution.ReadCount), err)
			}
			execution.ReadCount++
			read++

			out, err := s.processor.Process(ctx, item)
			if err != nil {
				return exception.NewPipelineError(s.name, fmt.Sprintf("item process failed at item %d", execution.ReadCount), err)
			}
			if out == nil {
				execution.FilterCount++
				filtered++
				continue
			}
			chunk = append(chunk, *out)
		}

		s.metricRecorder.RecordItem(ctx, s.name, metrics.ItemRead, read)
		s.metricRecorder.RecordItem(ctx, s.name, metrics.ItemFiltered, filtered)

		if len(chunk) > 0 {
			if err := s.writer.Write(ctx, chunk); err != nil {
				return exception.NewPipelineError(s.name, fmt.Sprintf("chunk write failed (%d items)", len(chunk)), err)
			}
			execution.WriteCount += len(chunk)
			s.metricRecorder.RecordItem(ctx, s.name, metrics.ItemWritten, len(chunk))
			logger.Debugf("ChunkStep '%s': wrote chunk of %d items (total %d).", s.name, len(chunk), execution.WriteCount)
		}
		if eof {
			return nil
		}
	}
}
