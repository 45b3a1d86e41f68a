// Package database defines the relational database abstraction the export
// job writes to. The GORM-backed implementation lives in the gorm
// subpackage, with one driver package per database type.
package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// ProviderGroup is the Fx value group database providers are collected in.
const ProviderGroup = "db_providers"

// Connection is a named, configured database connection.
type Connection interface {
	// Type returns the database type (e.g. "sqlite").
	Type() string
	// Name returns the configured connection name.
	Name() string
	// Config returns the configuration the connection was opened with.
	Config() DatabaseConfig
	// DB returns a GORM session bound to ctx.
	DB(ctx context.Context) *gorm.DB
	// SQLDB returns the underlying *sql.DB.
	SQLDB() (*sql.DB, error)
	// Close closes the connection pool.
	Close() error
}

// Provider creates and caches connections of one database type.
type Provider interface {
	Type() string
	GetConnection(name string) (Connection, error)
	CloseAll() error
}

// Resolver maps a configured connection name to a live Connection.
type Resolver interface {
	ResolveConnection(ctx context.Context, name string) (Connection, error)
}
