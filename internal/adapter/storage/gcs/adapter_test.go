package gcs

import (
	"context"
	"testing"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
)

func TestNewAdapter_RequiresBucket(t *testing.T) {
	_, err := NewAdapter(context.Background(), storage.Config{Type: ProviderType}, "cloud")
	assert.ErrorContains(t, err, "bucket_name must be specified")
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(storage.Config{}))
	assert.Len(t, ClientOptions(storage.Config{CredentialsFile: "/tmp/key.json"}), 1)
	assert.Len(t, ClientOptions(storage.Config{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestNewAdapter_WithEmulatorEndpoint(t *testing.T) {
	cfg := storage.Config{Type: ProviderType, BucketName: "rentals", Endpoint: "http://127.0.0.1:1/storage/v1/"}
	conn, err := NewAdapter(context.Background(), cfg, "cloud")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, ProviderType, conn.Type())
	assert.Equal(t, "cloud", conn.Name())
	assert.Equal(t, "rentals", conn.Config().BucketName)
}

func TestObjectInfo_FallsBackToMD5(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	info := objectInfo(&gcsclient.ObjectAttrs{Name: "train.csv", Size: 42, Updated: updated, MD5: []byte{0xde, 0xad}})

	assert.Equal(t, storage.ObjectInfo{Name: "train.csv", Size: 42, ModTime: updated, ETag: "dead"}, info)

	info = objectInfo(&gcsclient.ObjectAttrs{Name: "x", Etag: "CJ+0"})
	assert.Equal(t, "CJ+0", info.ETag)
}

func TestProvider_TypeMismatch(t *testing.T) {
	configs := map[string]interface{}{"data": map[string]interface{}{"type": "local", "base_dir": t.TempDir()}}
	_, err := NewProvider(configs).GetConnection(context.Background(), "data")
	assert.ErrorContains(t, err, "type mismatch")
}
