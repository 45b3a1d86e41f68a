// Package mysql provides the GORM provider for MySQL databases.
package mysql

import (
	"fmt"
	"net"
	"strconv"

	drivermysql "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/config"
)

// ProviderType is the database type served by this package.
const ProviderType = "mysql"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, fmt.Errorf("MySQL connection requires host and database")
		}
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the go-sql-driver DSN for cfg.
func ConnectionString(cfg database.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dc := drivermysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	// golang-migrate applies multi-statement migration files.
	dc.MultiStatements = true
	return dc.FormatDSN()
}

// NewProvider creates the MySQL provider over the configured database connections.
func NewProvider(cfg *config.Config) database.Provider {
	return gormadapter.NewBaseProvider(cfg.Bikeshare.Database, ProviderType, cfg.Bikeshare.System.Logging.SQLLevel)
}

// Module exports the MySQL provider into the database provider group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.ProviderGroup+`"`),
		),
	),
)
