// Package local implements the storage adapter over the local file system.
// Buckets map to subdirectories of the configured base directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// ProviderType is the storage type served by this package.
const ProviderType = "local"

type localAdapter struct {
	cfg  storage.Config
	name string
}

var _ storage.Connection = (*localAdapter)(nil)

// NewAdapter creates a local adapter rooted at cfg.BaseDir, creating the
// directory if needed.
func NewAdapter(cfg storage.Config, name string) (storage.Connection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage adapter '%s': failed to stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage adapter '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &localAdapter{cfg: cfg, name: name}, nil
}

// NewProvider returns a provider creating local connections from the storage section.
func NewProvider(configs map[string]interface{}) storage.Provider {
	return storage.NewBaseProvider(ProviderType, configs, func(_ context.Context, cfg storage.Config, name string) (storage.Connection, error) {
		return NewAdapter(cfg, name)
	})
}

func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

func (a *localAdapter) Type() string { return ProviderType }

func (a *localAdapter) Name() string { return a.name }

func (a *localAdapter) Config() storage.Config { return a.cfg }

// Upload writes to a temporary file and renames it into place, so readers
// never observe a partially written object.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data to '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush '%s': %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move upload into '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded data to '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("'%s': %w", fullPath, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

func (a *localAdapter) Stat(ctx context.Context, bucket, objectName string) (storage.ObjectInfo, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("failed to resolve path for stat: %w", err)
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("'%s': %w", fullPath, storage.ErrObjectNotFound)
		}
		return storage.ObjectInfo{}, fmt.Errorf("failed to stat '%s': %w", fullPath, err)
	}
	if info.IsDir() {
		return storage.ObjectInfo{}, fmt.Errorf("'%s' is a directory", fullPath)
	}
	return storage.ObjectInfo{Name: objectName, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// ListObjects walks the bucket directory and reports slash-separated object
// names relative to it. Hidden temporary upload files are skipped.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}
	if _, err := os.Stat(basePath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s': %w", path, err)
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	return nil
}

func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debugf("Object '%s' already absent (local adapter '%s').", fullPath, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	logger.Debugf("Deleted object '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// resolvePath joins base_dir, bucket and objectName and refuses paths
// escaping base_dir.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(objectName))

	absBase, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	rel, err := filepath.Rel(absBase, absFull)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}
