package gorm_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/mysql"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/postgres"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/sqlite"
)

func TestConnectionStrings(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=bike password=secret dbname=rentals sslmode=disable search_path=analytics",
		postgres.ConnectionString(database.DatabaseConfig{Host: "db", User: "bike", Password: "secret", Database: "rentals", Schema: "analytics"}))
	assert.Equal(t,
		"host=db port=6543 user=bike password= dbname=rentals sslmode=require",
		postgres.ConnectionString(database.DatabaseConfig{Host: "db", Port: 6543, User: "bike", Database: "rentals", Sslmode: "require"}))

	dsn := mysql.ConnectionString(database.DatabaseConfig{Host: "db", User: "bike", Password: "secret", Database: "rentals"})
	assert.Contains(t, dsn, "bike:secret@tcp(db:3306)/rentals?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	assert.Equal(t, "/tmp/a.db?_busy_timeout=5000&_foreign_keys=on", sqlite.ConnectionString(database.DatabaseConfig{Database: "/tmp/a.db"}))
	assert.Equal(t, "file::memory:?cache=shared", sqlite.ConnectionString(database.DatabaseConfig{Database: "file::memory:?cache=shared"}))
}

func TestGetDialectorFactory_Unknown(t *testing.T) {
	_, err := gormadapter.GetDialectorFactory("oracle")
	assert.ErrorContains(t, err, "no dialector registered for database type: oracle")
}

func sqliteConfigs(t *testing.T) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"analytics": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "analytics.db"),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
		"warehouse": map[string]interface{}{
			"type": "postgres",
			"host": "localhost",
		},
	}
}

func TestBaseProvider_CachesConnections(t *testing.T) {
	p := gormadapter.NewBaseProvider(sqliteConfigs(t), sqlite.ProviderType, "SILENT")
	t.Cleanup(func() { p.CloseAll() })

	first, err := p.GetConnection("analytics")
	require.NoError(t, err)
	second, err := p.GetConnection("analytics")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "sqlite", first.Type())
	assert.Equal(t, "analytics", first.Name())
	assert.Equal(t, "SILENT", first.Config().SQLLogLevel)

	var one int
	require.NoError(t, first.DB(context.Background()).Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	require.NoError(t, p.CloseAll())
	third, err := p.GetConnection("analytics")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestBaseProvider_Errors(t *testing.T) {
	p := gormadapter.NewBaseProvider(sqliteConfigs(t), sqlite.ProviderType, "SILENT")

	_, err := p.GetConnection("missing")
	assert.ErrorContains(t, err, "configuration 'missing' not found")

	_, err = p.GetConnection("warehouse")
	assert.ErrorContains(t, err, "provider type mismatch: expected 'sqlite', got 'postgres'")
}

func TestResolver_DispatchesByType(t *testing.T) {
	configs := sqliteConfigs(t)
	r := gormadapter.NewResolver(configs, gormadapter.NewBaseProvider(configs, sqlite.ProviderType, "SILENT"))
	t.Cleanup(func() { r.CloseAll() })

	conn, err := r.ResolveConnection(context.Background(), "analytics")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())

	_, err = r.ResolveConnection(context.Background(), "warehouse")
	assert.ErrorContains(t, err, "no database provider registered for type 'postgres'")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ResolveConnection(ctx, "analytics")
	assert.ErrorIs(t, err, context.Canceled)
}
