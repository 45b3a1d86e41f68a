// Package migration applies the export schema with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// DefaultTable is the golang-migrate bookkeeping table used when none is configured.
const DefaultTable = "bikeshare_schema_migrations"

// Migrator applies the migrations found under <root>/<database type> in an fs.FS.
type Migrator struct {
	fsys  fs.FS
	root  string
	table string
}

// NewMigrator creates a Migrator reading fsys. root is the directory holding
// one subdirectory per database type (e.g. "migrations").
func NewMigrator(fsys fs.FS, root, table string) *Migrator {
	if table == "" {
		table = DefaultTable
	}
	return &Migrator{fsys: fsys, root: root, table: table}
}

// Path returns the migration directory for dbType.
func (m *Migrator) Path(dbType string) string {
	return m.root + "/" + dbType
}

// Up applies every pending migration on conn. An up-to-date schema is not an error.
func (m *Migrator) Up(ctx context.Context, conn database.Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := m.Path(conn.Type())
	logger.Infof("Executing migration 'up' (Connection: %s, Path: %s, Table: %s)", conn.Name(), path, m.table)

	sqlDB, err := conn.SQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(m.fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	// Closing the migrate instance would also close the shared *sql.DB,
	// so only the source is released.
	defer sourceDriver.Close()

	dbDriver, err := DriverFor(conn.Type(), sqlDB, m.table)
	if err != nil {
		return err
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, conn.Type(), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := mInstance.Version(); verr == nil {
			logger.Errorf("Migration failed at version %d (dirty=%t).", version, dirty)
		}
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", conn.Type(), path, err)
	}

	version, _, err := mInstance.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Infof("Migration 'up' completed. Schema version: %d", version)
	return nil
}

// DriverFor returns the golang-migrate database driver for dbType over sqlDB.
func DriverFor(dbType string, sqlDB *sql.DB, table string) (migratedb.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}
