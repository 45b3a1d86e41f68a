package migration_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bikeshare/internal/adapter/database/migration"
)

var migrations = fstest.MapFS{
	"migrations/sqlite/000001_create_rental_exports.up.sql": &fstest.MapFile{
		Data: []byte("CREATE TABLE rental_exports (id TEXT PRIMARY KEY, row_count INTEGER NOT NULL);"),
	},
	"migrations/sqlite/000001_create_rental_exports.down.sql": &fstest.MapFile{
		Data: []byte("DROP TABLE rental_exports;"),
	},
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	configs := map[string]interface{}{
		"analytics": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "analytics.db"),
		},
	}
	p := gormadapter.NewBaseProvider(configs, sqlite.ProviderType, "SILENT")
	t.Cleanup(func() { p.CloseAll() })
	conn, err := p.GetConnection("analytics")
	require.NoError(t, err)

	m := migration.NewMigrator(migrations, "migrations", "")
	assert.Equal(t, "migrations/sqlite", m.Path("sqlite"))

	ctx := context.Background()
	require.NoError(t, m.Up(ctx, conn))
	require.NoError(t, m.Up(ctx, conn), "second run has nothing to apply")

	var tables int64
	require.NoError(t, conn.DB(ctx).Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)",
		"rental_exports", migration.DefaultTable).Scan(&tables).Error)
	assert.Equal(t, int64(2), tables)

	// The shared handle must survive the migration run.
	sqlDB, err := conn.SQLDB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestMigrator_MissingPath(t *testing.T) {
	configs := map[string]interface{}{
		"analytics": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "analytics.db"),
		},
	}
	p := gormadapter.NewBaseProvider(configs, sqlite.ProviderType, "SILENT")
	t.Cleanup(func() { p.CloseAll() })
	conn, err := p.GetConnection("analytics")
	require.NoError(t, err)

	err = migration.NewMigrator(migrations, "other", "").Up(context.Background(), conn)
	assert.ErrorContains(t, err, "failed to create iofs source driver for path other/sqlite")
}

func TestDriverFor_Unsupported(t *testing.T) {
	_, err := migration.DriverFor("oracle", nil, migration.DefaultTable)
	assert.EqualError(t, err, "unsupported database type for migration: oracle")
}
