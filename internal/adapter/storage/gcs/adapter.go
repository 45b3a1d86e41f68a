// Package gcs implements the storage adapter over Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	gcsclient "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// ProviderType is the storage type served by this package.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *gcsclient.Client
	cfg    storage.Config
	name   string
}

var _ storage.Connection = (*gcsAdapter)(nil)

// ClientOptions translates the connection configuration into client options.
func ClientOptions(cfg storage.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	return opts
}

// NewAdapter creates a GCS client for the connection.
func NewAdapter(ctx context.Context, cfg storage.Config, name string) (storage.Connection, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': bucket_name must be specified", name)
	}
	client, err := gcsclient.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return NewAdapterWithClient(client, cfg, name), nil
}

// NewAdapterWithClient wraps an existing client.
func NewAdapterWithClient(client *gcsclient.Client, cfg storage.Config, name string) storage.Connection {
	return &gcsAdapter{client: client, cfg: cfg, name: name}
}

// NewProvider returns a provider creating GCS connections from the storage section.
func NewProvider(configs map[string]interface{}) storage.Provider {
	return storage.NewBaseProvider(ProviderType, configs, NewAdapter)
}

func (a *gcsAdapter) Close() error {
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) Type() string { return ProviderType }

func (a *gcsAdapter) Name() string { return a.name }

func (a *gcsAdapter) Config() storage.Config { return a.cfg }

func (a *gcsAdapter) bucket(name string) *gcsclient.BucketHandle {
	if name == "" {
		name = a.cfg.BucketName
	}
	return a.client.Bucket(name)
}

func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.bucket(bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs object '%s': %w", objectName, err)
	}
	// The object is only committed once Close succeeds.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs object '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs object '%s' (adapter '%s').", objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcsclient.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs object '%s': %w", objectName, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open gs object '%s': %w", objectName, err)
	}
	return r, nil
}

func (a *gcsAdapter) Stat(ctx context.Context, bucket, objectName string) (storage.ObjectInfo, error) {
	attrs, err := a.bucket(bucket).Object(objectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcsclient.ErrObjectNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("gs object '%s': %w", objectName, storage.ErrObjectNotFound)
		}
		return storage.ObjectInfo{}, fmt.Errorf("failed to stat gs object '%s': %w", objectName, err)
	}
	return objectInfo(attrs), nil
}

func objectInfo(attrs *gcsclient.ObjectAttrs) storage.ObjectInfo {
	etag := attrs.Etag
	if etag == "" && len(attrs.MD5) > 0 {
		etag = hex.EncodeToString(attrs.MD5)
	}
	return storage.ObjectInfo{
		Name:    attrs.Name,
		Size:    attrs.Size,
		ModTime: attrs.Updated,
		ETag:    etag,
	}
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.bucket(bucket).Objects(ctx, &gcsclient.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list gs objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.bucket(bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, gcsclient.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs object '%s': %w", objectName, err)
	}
	return nil
}
