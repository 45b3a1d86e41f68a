// Package postgres provides the GORM provider for PostgreSQL databases.
package postgres

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/config"
)

// ProviderType is the database type served by this package.
const ProviderType = "postgres"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString generates the keyword/value DSN expected by gorm.io/driver/postgres.
func ConnectionString(c database.DatabaseConfig) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// NewProvider creates the PostgreSQL provider over the configured database connections.
func NewProvider(cfg *config.Config) database.Provider {
	return gormadapter.NewBaseProvider(cfg.Bikeshare.Database, ProviderType, cfg.Bikeshare.System.Logging.SQLLevel)
}

// Module exports the PostgreSQL provider into the database provider group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.ProviderGroup+`"`),
		),
	),
)
