// Package dataset loads the rental dataset from object storage and caches the
// derived records per source.
//
// A cached dataset stays valid while the source's modification time and size
// are unchanged. When they change the source is re-read, and if its SHA-256
// still matches, the cached records are kept and only the fingerprint is
// refreshed.
package dataset

import (
	"fmt"
	"time"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/domain/model"
)

// Source identifies a dataset object in a storage connection.
type Source struct {
	// StorageRef names the storage connection.
	StorageRef string
	// Bucket overrides the connection's default bucket when set.
	Bucket string
	// Object is the object name of the CSV file.
	Object string
}

// SourceFromConfig builds the Source described by the dataset configuration.
func SourceFromConfig(cfg config.DatasetConfig) Source {
	return Source{StorageRef: cfg.StorageRef, Bucket: cfg.Bucket, Object: cfg.Object}
}

// Key is the cache key of the source.
func (s Source) Key() string {
	return s.String()
}

// String renders the source as "<storage_ref>://<bucket>/<object>".
func (s Source) String() string {
	if s.Bucket == "" {
		return fmt.Sprintf("%s://%s", s.StorageRef, s.Object)
	}
	return fmt.Sprintf("%s://%s/%s", s.StorageRef, s.Bucket, s.Object)
}

// Fingerprint identifies one version of a source's content.
type Fingerprint struct {
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
	SHA256  string    `json:"sha256"`
}

// MatchesStat reports whether info describes the same modification time and size.
func (f Fingerprint) MatchesStat(info storage.ObjectInfo) bool {
	return f.ModTime.Equal(info.ModTime) && f.Size == info.Size
}

// Dataset is the derived content of one source. Records are shared between
// all readers and must not be modified.
type Dataset struct {
	Source      Source
	Records     []model.EnrichedRecord
	Fingerprint Fingerprint
	LoadedAt    time.Time
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}
