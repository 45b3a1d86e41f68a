// Package storage defines the object storage abstraction used to read the
// rental dataset and to publish exports. Concrete adapters live in the
// local and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is wrapped by adapters when an object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	// ETag is a provider-specific version tag, empty for local files.
	ETag string
}

// Executor is the set of object operations every adapter implements.
type Executor interface {
	// Upload writes data to bucket/objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName for reading. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// Stat returns metadata of bucket/objectName without reading it.
	Stat(ctx context.Context, bucket, objectName string) (ObjectInfo, error)
	// ListObjects calls fn for each object name under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. Missing objects are not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// Connection is a named, configured storage adapter.
type Connection interface {
	Executor
	Close() error
	Type() string
	Name() string
	Config() Config
}

// Provider creates and caches connections of one storage type.
type Provider interface {
	Type() string
	GetConnection(ctx context.Context, name string) (Connection, error)
	CloseAll() error
}

// Resolver maps a configured connection name to a live Connection.
type Resolver interface {
	ResolveConnection(ctx context.Context, name string) (Connection, error)
}
