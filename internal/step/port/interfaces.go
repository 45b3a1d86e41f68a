// Package port defines the item-oriented interfaces the export step is
// assembled from: a reader producing items, processors transforming or
// filtering them, and a writer persisting them in chunks.
package port

import (
	"context"
	"errors"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// ItemReader reads items one at a time.
type ItemReader[O any] interface {
	// Open opens the underlying resource.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   O: The next item.
	//   error: ErrNoMoreItems at the end of input, or another error if reading fails.
	Read(ctx context.Context) (O, error)
	// Close releases the underlying resource.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if closing fails.
	Close(ctx context.Context) error
}

// ItemProcessor transforms an input item into an output item.
type ItemProcessor[I, O any] interface {
	// Process processes an input item. A nil output means the item is filtered out.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The input item to be processed.
	//
	// Returns:
	//   *O: The processed item, or nil if filtered.
	//   error: An error if processing fails.
	Process(ctx context.Context, item I) (*O, error)
}

// ItemWriter persists chunks of items. Nothing written is visible until
// Close succeeds; Rollback discards everything since Open.
type ItemWriter[I any] interface {
	// Open prepares the writer for a new run.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context) error
	// Write accepts a chunk of items.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   items: The list of items to be written.
	//
	// Returns:
	//   error: An error if writing fails.
	Write(ctx context.Context, items []I) error
	// Close commits everything written since Open.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if committing fails. The writer has rolled back in that case.
	Close(ctx context.Context) error
	// Rollback discards everything written since Open.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if the rollback itself fails.
	Rollback(ctx context.Context) error
}

// ItemProcessorFunc adapts a function to ItemProcessor.
type ItemProcessorFunc[I, O any] func(ctx context.Context, item I) (*O, error)

// Process calls f(ctx, item).
func (f ItemProcessorFunc[I, O]) Process(ctx context.Context, item I) (*O, error) {
	return f(ctx, item)
}

// Chain composes two processors. The second is skipped for items the first filters out.
func Chain[A, B, C any](first ItemProcessor[A, B], second ItemProcessor[B, C]) ItemProcessor[A, C] {
	return ItemProcessorFunc[A, C](func(ctx context.Context, item A) (*C, error) {
		mid, err := first.Process(ctx, item)
		if err != nil || mid == nil {
			return nil, err
		}
		return second.Process(ctx, *mid)
	})
}
