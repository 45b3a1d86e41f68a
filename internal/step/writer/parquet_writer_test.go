package writer_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	storagelocal "github.com/tigerroll/bikeshare/internal/adapter/storage/local"
	"github.com/tigerroll/bikeshare/internal/domain/entity"
	"github.com/tigerroll/bikeshare/internal/step/writer"
)

func rows(exportID string) []entity.EnrichedRental {
	temp := 9.84
	at := func(y, m, d, h int) int64 { return time.Date(y, time.Month(m), d, h, 0, 0, 0, time.UTC).UnixMilli() }
	return []entity.EnrichedRental{
		{ExportID: exportID, RowIndex: 0, ObservedAt: at(2011, 1, 1, 5), Year: 2011, Month: 1, Hour: 5, DayOfWeek: "Saturday", DayPeriod: "Night", Season: 1, SeasonName: "Spring", Weather: 1, Count: 3, Temp: &temp},
		{ExportID: exportID, RowIndex: 1, ObservedAt: at(2011, 1, 1, 8), Year: 2011, Month: 1, Hour: 8, DayOfWeek: "Saturday", DayPeriod: "Morning", Season: 1, SeasonName: "Spring", Weather: 1, Count: 40},
		{ExportID: exportID, RowIndex: 2, ObservedAt: at(2012, 7, 4, 13), Year: 2012, Month: 7, Hour: 13, DayOfWeek: "Wednesday", DayPeriod: "Afternoon", Season: 3, SeasonName: "Fall", Weather: 2, WorkingDay: true, Count: 120},
	}
}

func localResolver(dir string) storage.Resolver {
	configs := map[string]interface{}{
		"export": map[string]interface{}{"type": "local", "base_dir": dir},
	}
	return storage.NewResolver(configs, storagelocal.NewProvider(configs))
}

func readParquet(t *testing.T, file string) []entity.EnrichedRental {
	t.Helper()
	fr, err := local.NewLocalFileReader(file)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(entity.EnrichedRental), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	out := make([]entity.EnrichedRental, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&out))
	return out
}

func TestParquetWriter_PartitionsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{
		StorageRef:    "export",
		OutputBaseDir: "/bikeshare/enriched/",
		FileID:        "exp-1",
	}, localResolver(dir))
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	all := rows("exp-1")
	require.NoError(t, w.Write(ctx, all[:2]))
	require.NoError(t, w.Write(ctx, all[2:]))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []string{
		"bikeshare/enriched/year=2011/month=01/part-exp-1.parquet",
		"bikeshare/enriched/year=2012/month=07/part-exp-1.parquet",
	}, w.Uploaded())

	jan := readParquet(t, filepath.Join(dir, "bikeshare", "enriched", "year=2011", "month=01", "part-exp-1.parquet"))
	require.Len(t, jan, 2)
	assert.Equal(t, "Night", jan[0].DayPeriod)
	assert.Equal(t, int32(40), jan[1].Count)
	require.NotNil(t, jan[0].Temp)
	assert.InDelta(t, 9.84, *jan[0].Temp, 1e-9)
	assert.Nil(t, jan[1].Temp)

	jul := readParquet(t, filepath.Join(dir, "bikeshare", "enriched", "year=2012", "month=07", "part-exp-1.parquet"))
	require.Len(t, jul, 1)
	assert.True(t, jul[0].WorkingDay)
	assert.Equal(t, "Fall", jul[0].SeasonName)
}

func TestParquetWriter_RollbackUploadsNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{
		StorageRef:    "export",
		OutputBaseDir: "out",
	}, localResolver(dir))
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, rows("x")))
	require.NoError(t, w.Rollback(ctx))

	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err))
}

func TestParquetWriter_Overwrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stale := filepath.Join(dir, "out", "year=2010", "month=01", "part-old.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	keep := filepath.Join(dir, "other", "keep.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(keep), 0o755))
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{
		StorageRef:      "export",
		OutputBaseDir:   "out",
		CompressionType: "gzip",
		Overwrite:       true,
	}, localResolver(dir))
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, rows("new")))
	require.NoError(t, w.Close(ctx))

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
	assert.Len(t, w.Uploaded(), 2)
}

func TestParquetWriter_Validation(t *testing.T) {
	_, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{OutputBaseDir: "out"}, nil)
	assert.ErrorContains(t, err, "storage_ref")

	_, err = writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{StorageRef: "export"}, nil)
	assert.ErrorContains(t, err, "output_base_dir")

	_, err = writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{StorageRef: "export", OutputBaseDir: "out", CompressionType: "LZMA"}, nil)
	assert.ErrorContains(t, err, "unsupported compression type")
}

func TestParquetWriter_InvalidPartition(t *testing.T) {
	ctx := context.Background()
	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{StorageRef: "export", OutputBaseDir: "out"}, localResolver(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, w.Open(ctx))
	assert.Error(t, w.Write(ctx, []entity.EnrichedRental{{Year: 2011, Month: 13}}))
}

// flakyConnection fails every upload after the first.
type flakyConnection struct {
	storage.Connection
	uploads []string
	deleted []string
}

func (c *flakyConnection) Upload(_ context.Context, _, objectName string, data io.Reader, _ string) error {
	if len(c.uploads) > 0 {
		return errors.New("quota exceeded")
	}
	_, _ = io.Copy(io.Discard, data)
	c.uploads = append(c.uploads, objectName)
	return nil
}

func (c *flakyConnection) DeleteObject(_ context.Context, _, objectName string) error {
	c.deleted = append(c.deleted, objectName)
	return nil
}

type staticResolver struct{ conn storage.Connection }

func (r staticResolver) ResolveConnection(context.Context, string) (storage.Connection, error) {
	return r.conn, nil
}

func TestParquetWriter_FailedUploadRemovesPartialOutput(t *testing.T) {
	ctx := context.Background()
	conn := &flakyConnection{}
	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{
		StorageRef:    "export",
		OutputBaseDir: "out",
		FileID:        "f",
	}, staticResolver{conn: conn})
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, rows("f")))
	err = w.Close(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))

	assert.Equal(t, []string{"out/year=2011/month=01/part-f.parquet"}, conn.uploads)
	assert.Equal(t, conn.uploads, conn.deleted)
	assert.Empty(t, w.Uploaded())
}

func TestParquetWriter_MonthPartitionStaysCompact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := writer.NewEnrichedRentalParquetWriter("export", writer.ParquetWriterConfig{
		StorageRef:    "export",
		OutputBaseDir: "out",
		FileID:        "month",
	}, localResolver(dir))
	require.NoError(t, err)

	start := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	month := make([]entity.EnrichedRental, 0, 31*24)
	for i := 0; i < 31*24; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		month = append(month, entity.EnrichedRental{
			ExportID: "month", RowIndex: int64(i), ObservedAt: ts.UnixMilli(),
			Year: 2011, Month: 1, Hour: int32(ts.Hour()), DayOfWeek: ts.Weekday().String(), DayPeriod: "Night",
			Season: 1, SeasonName: "Spring", Weather: 1, Count: int32(i % 50),
		})
	}

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, month))
	require.NoError(t, w.Close(ctx))

	file := filepath.Join(dir, "out", "year=2011", "month=01", "part-month.parquet")
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(100*1024))

	fr, err := local.NewLocalFileReader(file)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(entity.EnrichedRental), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(31*24), pr.GetNumRows())
	assert.Len(t, pr.Footer.RowGroups, 1)
}
