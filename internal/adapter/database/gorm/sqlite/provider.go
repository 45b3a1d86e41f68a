// Package sqlite provides the GORM provider for SQLite databases.
package sqlite

import (
	"errors"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/config"
)

// ProviderType is the database type served by this package.
const ProviderType = "sqlite"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the DSN for cfg: the file path with a busy timeout
// unless the path already carries options.
func ConnectionString(cfg database.DatabaseConfig) string {
	if strings.Contains(cfg.Database, "?") {
		return cfg.Database
	}
	return cfg.Database + "?_busy_timeout=5000&_foreign_keys=on"
}

// NewProvider creates the SQLite provider over the configured database connections.
func NewProvider(cfg *config.Config) database.Provider {
	return gormadapter.NewBaseProvider(cfg.Bikeshare.Database, ProviderType, cfg.Bikeshare.System.Logging.SQLLevel)
}

// Module exports the SQLite provider into the database provider group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.ProviderGroup+`"`),
		),
	),
)
