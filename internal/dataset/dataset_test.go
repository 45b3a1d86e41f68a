package dataset_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/adapter/storage/local"
	"github.com/tigerroll/bikeshare/internal/dataset"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/support/exception"
)

const sampleCSV = `datetime,season,holiday,workingday,weather,temp,atemp,humidity,windspeed,casual,registered,count
2011-01-01 05:00:00,1,0,0,1,9.84,14.395,81,0,3,13,3
2011-01-01 08:00:00,1,0,0,1,9.02,13.635,80,0,8,32,40
`

var src = dataset.Source{StorageRef: "dataset", Object: "train.csv"}

type fixture struct {
	dir    string
	path   string
	loader *dataset.Loader
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	dir := t.TempDir()
	configs := map[string]interface{}{
		"dataset": map[string]interface{}{"type": local.ProviderType, "base_dir": dir},
	}
	resolver := storage.NewResolver(configs, local.NewProvider(configs))
	f := &fixture{dir: dir, path: filepath.Join(dir, "train.csv"), loader: dataset.NewLoader(resolver, time.UTC, ',', nil, nil)}
	f.write(t, content, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return f
}

func (f *fixture) write(t *testing.T, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(f.path, mtime, mtime))
}

// countingLoader counts Load calls.
type countingLoader struct {
	*dataset.Loader
	loads atomic.Int32
}

func (l *countingLoader) Load(ctx context.Context, s dataset.Source) (*dataset.Dataset, error) {
	l.loads.Add(1)
	return l.Loader.Load(ctx, s)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "dataset://train.csv", src.String())
	assert.Equal(t, "gcs://rentals/2011/train.csv", dataset.Source{StorageRef: "gcs", Bucket: "rentals", Object: "2011/train.csv"}.Key())
}

func TestLoader_Load(t *testing.T) {
	f := newFixture(t, sampleCSV)

	ds, err := f.loader.Load(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, model.Night, ds.Records[0].DayPeriod)
	assert.Equal(t, model.Morning, ds.Records[1].DayPeriod)
	assert.Equal(t, model.Spring, ds.Records[0].SeasonName)
	assert.Equal(t, "Saturday", ds.Records[0].DayOfWeek)
	assert.Equal(t, 40, ds.Records[1].Count)

	sum := sha256.Sum256([]byte(sampleCSV))
	assert.Equal(t, hex.EncodeToString(sum[:]), ds.Fingerprint.SHA256)
	assert.Equal(t, int64(len(sampleCSV)), ds.Fingerprint.Size)
	assert.True(t, ds.Fingerprint.ModTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoader_MalformedRowFailsWholeLoad(t *testing.T) {
	f := newFixture(t, "datetime,season,workingday,weather,count\n2011-01-01 00:00:00,1,0,1,16\n2011-01-01 01:00:00,7,0,1,40\n")

	ds, err := f.loader.Load(context.Background(), src)
	assert.Nil(t, ds)
	dfe, ok := exception.AsDataFormatError(err)
	require.True(t, ok, "expected DataFormatError, got %v", err)
	assert.Equal(t, "dataset://train.csv", dfe.Source)
	assert.Equal(t, 3, dfe.Line)
	assert.Equal(t, "season", dfe.Column)
}

func TestLoader_MissingObject(t *testing.T) {
	f := newFixture(t, sampleCSV)
	_, err := f.loader.Load(context.Background(), dataset.Source{StorageRef: "dataset", Object: "absent.csv"})
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))

	_, err = f.loader.Load(context.Background(), dataset.Source{StorageRef: "nowhere", Object: "train.csv"})
	assert.ErrorContains(t, err, "failed to resolve storage connection 'nowhere'")
}

func TestCache_HitAndStatChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleCSV)
	loader := &countingLoader{Loader: f.loader}
	cache := dataset.NewCache(loader, 0, nil)

	first, err := cache.Get(ctx, src)
	require.NoError(t, err)
	second, err := cache.Get(ctx, src)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loader.loads.Load())

	// Same bytes, new mtime: re-read but the records are kept.
	touched := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f.write(t, sampleCSV, touched)
	third, err := cache.Get(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.loads.Load())
	assert.Same(t, &first.Records[0], &third.Records[0])
	assert.True(t, third.Fingerprint.ModTime.Equal(touched))

	// Changed bytes: new records.
	f.write(t, sampleCSV+"2011-01-01 13:00:00,1,0,0,2,18.86,22.725,72,19.9995,47,47,94\n", touched)
	fourth, err := cache.Get(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, fourth.Len())
	assert.NotEqual(t, first.Fingerprint.SHA256, fourth.Fingerprint.SHA256)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_InvalidateAndFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleCSV)
	loader := &countingLoader{Loader: f.loader}
	cache := dataset.NewCache(loader, 0, nil)

	_, err := cache.Get(ctx, src)
	require.NoError(t, err)
	cache.Invalidate(src)
	_, ok := cache.Peek(src)
	assert.False(t, ok)

	_, err = cache.Reload(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.loads.Load())

	cache.Flush()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleCSV)
	loader := &countingLoader{Loader: f.loader}
	cache := dataset.NewCache(loader, 20*time.Millisecond, nil)

	_, err := cache.Get(ctx, src)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = cache.Get(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.loads.Load())
}

func TestCache_ConcurrentMissesLoadOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleCSV)
	loader := &countingLoader{Loader: f.loader}
	cache := dataset.NewCache(loader, 0, nil)

	var wg sync.WaitGroup
	results := make([]*dataset.Dataset, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := cache.Get(ctx, src)
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.loads.Load())
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestCache_LoadErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "datetime,season\n2011-01-01 00:00:00,1\n")
	cache := dataset.NewCache(f.loader, 0, nil)

	_, err := cache.Get(ctx, src)
	assert.True(t, exception.IsDataFormatError(err))
	assert.Equal(t, 0, cache.Len())

	f.write(t, sampleCSV, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ds, err := cache.Get(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
}
