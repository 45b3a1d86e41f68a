package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bikeshare/internal/adapter/storage/local"
	"github.com/tigerroll/bikeshare/internal/app"
	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/query"
)

const trainCSV = `datetime,season,workingday,weather,count
2011-01-01 05:00:00,1,0,1,3
2011-01-01 08:00:00,1,0,1,40
2011-01-03 17:00:00,1,1,2,120
`

func testOptions(t *testing.T) app.Options {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "train.csv"), []byte(trainCSV), 0o644))

	cfg := config.NewConfig()
	cfg.Bikeshare.Observability.Metrics.Backend = config.MetricsBackendNoop
	cfg.Bikeshare.Storage = map[string]interface{}{
		"dataset": map[string]interface{}{"type": local.ProviderType, "base_dir": dataDir},
		"export":  map[string]interface{}{"type": local.ProviderType, "base_dir": t.TempDir()},
	}
	cfg.Bikeshare.Database = map[string]interface{}{
		"analytics": map[string]interface{}{"type": sqlite.ProviderType, "database": filepath.Join(t.TempDir(), "analytics.db")},
	}
	return app.Options{
		Config:          cfg,
		Migrations:      os.DirFS("../../cmd/bikeshare/resources"),
		ProviderOptions: []fx.Option{app.StorageProviderModules[local.ProviderType], app.DBProviderModules[sqlite.ProviderType]},
	}
}

func TestRunSummary(t *testing.T) {
	var out bytes.Buffer
	resp, err := app.RunSummary(context.Background(), testOptions(t), query.Request{}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Matched)

	text := out.String()
	assert.Contains(t, text, "Total rentals   43")
	assert.Contains(t, text, "Average hourly  21.5")
	assert.Contains(t, text, "Day type  Non-working day")
	assert.Contains(t, text, "Morning")
}

func TestRunSummary_NoData(t *testing.T) {
	var out bytes.Buffer
	_, err := app.RunSummary(context.Background(), testOptions(t), query.Request{Years: []int{1999}}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Max hourly      no data")
	assert.NotContains(t, out.String(), "Day period")
}

func TestRunExport(t *testing.T) {
	opts := testOptions(t)

	res, err := app.RunExport(context.Background(), opts, app.ExportRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Objects, 1)
	assert.Contains(t, app.ExportSummary(res), "written 3")

	res, err = app.RunExport(context.Background(), opts, app.ExportRequest{Format: config.ExportFormatDatabase})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Execution.WriteCount)
}

func TestRunExport_FilterResolvesMissingSets(t *testing.T) {
	opts := testOptions(t)

	res, err := app.RunExport(context.Background(), opts, app.ExportRequest{
		Format: config.ExportFormatDatabase,
		Filter: &query.Request{WorkingDay: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Execution.FilterCount)
	assert.Equal(t, 1, res.Execution.WriteCount)

	res, err = app.RunExport(context.Background(), opts, app.ExportRequest{
		Filter: &query.Request{Years: []int{2011}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Execution.WriteCount)
}
