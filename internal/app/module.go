// Package app assembles the bikeshare components with Fx and runs the
// serve, export and summary commands.
package app

import (
	"context"
	"io/fs"
	"net/http"

	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	gormadapter "github.com/tigerroll/bikeshare/internal/adapter/database/gorm"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/mysql"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/postgres"
	"github.com/tigerroll/bikeshare/internal/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bikeshare/internal/adapter/database/migration"
	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/adapter/storage/gcs"
	"github.com/tigerroll/bikeshare/internal/adapter/storage/local"
	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/dataset"
	"github.com/tigerroll/bikeshare/internal/export"
	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/query"
	"github.com/tigerroll/bikeshare/internal/server"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// DBProviderModules is used by main.go to select database providers by name.
var DBProviderModules = map[string]fx.Option{
	postgres.ProviderType: postgres.Module,
	mysql.ProviderType:    mysql.Module,
	sqlite.ProviderType:   sqlite.Module,
}

// StorageProviderModules is used by main.go to select storage providers by name.
var StorageProviderModules = map[string]fx.Option{
	local.ProviderType: local.Module,
	gcs.ProviderType:   gcs.Module,
}

// MigrationsFS is the file system holding migrations/<database type>/*.sql.
type MigrationsFS fs.FS

type storageResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Providers []storage.Provider `group:"storage_providers"`
}

// NewStorageResolver builds the storage resolver over every provided storage
// provider and closes their connections on stop.
func NewStorageResolver(p storageResolverParams) storage.Resolver {
	r := storage.NewResolver(p.Cfg.Bikeshare.Storage, p.Providers...)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing all storage connections...")
			return r.CloseAll()
		},
	})
	return r
}

type databaseResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Providers []database.Provider `group:"db_providers"`
}

// NewDatabaseResolver builds the database resolver over every provided
// database provider and closes their connections on stop.
func NewDatabaseResolver(p databaseResolverParams) database.Resolver {
	r := gormadapter.NewResolver(p.Cfg.Bikeshare.Database, p.Providers...)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing all database connections...")
			return r.CloseAll()
		},
	})
	return r
}

// NewMigrator creates the export schema migrator.
func NewMigrator(cfg *config.Config, fsys MigrationsFS) *migration.Migrator {
	return migration.NewMigrator(fsys, "migrations", cfg.Bikeshare.Export.MigrationsTable)
}

// NewLoader creates the dataset loader.
func NewLoader(cfg *config.Config, resolver storage.Resolver, recorder metrics.MetricRecorder, tracer metrics.Tracer) (*dataset.Loader, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return dataset.NewLoader(resolver, loc, cfg.Bikeshare.Dataset.DelimiterRune(), recorder, tracer), nil
}

// NewCache creates the dataset cache.
func NewCache(cfg *config.Config, loader *dataset.Loader, recorder metrics.MetricRecorder) *dataset.Cache {
	return dataset.NewCache(loader, config.Seconds(cfg.Bikeshare.Dataset.CacheTTLSeconds), recorder)
}

// NewQueryService creates the query service over the configured dataset.
func NewQueryService(cfg *config.Config, cache *dataset.Cache, recorder metrics.MetricRecorder, tracer metrics.Tracer) *query.Service {
	return query.NewService(cache, dataset.SourceFromConfig(cfg.Bikeshare.Dataset), recorder, tracer)
}

// NewHTTPHandler creates the router of the query API.
func NewHTTPHandler(cfg *config.Config, svc *query.Service, recorder metrics.MetricRecorder) http.Handler {
	return server.NewRouter(server.NewHandler(svc), server.RouterConfig{
		AllowedOrigins: cfg.Bikeshare.Server.AllowedOrigins,
		MetricsHandler: metrics.Handler(recorder),
		Recorder:       recorder,
	})
}

// NewHTTPServer creates the HTTP server and ties it to the lifecycle. The
// dataset is loaded once at start; a failure is logged and surfaces as 503
// responses until the source is fixed.
func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, svc *query.Service) *server.Server {
	srv := server.NewServer(cfg.Bikeshare.Server, handler)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if ds, err := svc.Reload(ctx); err != nil {
				logger.Warnf("Initial dataset load from %s failed: %v", svc.Source(), err)
			} else {
				logger.Infof("Dataset %s ready with %d records.", svc.Source(), ds.Len())
			}
			return srv.Start(ctx)
		},
		OnStop: srv.Stop,
	})
	return srv
}

// NewExportJob creates the export job.
func NewExportJob(cfg *config.Config, storageResolver storage.Resolver, dbResolver database.Resolver, migrator *migration.Migrator,
	recorder metrics.MetricRecorder, tracer metrics.Tracer) *export.Job {
	return export.NewJob(cfg, storageResolver, dbResolver, migrator, recorder, tracer)
}

// Module provides every component; the commands pull what they need.
var Module = fx.Options(
	metrics.Module,
	fx.Provide(
		NewStorageResolver,
		NewDatabaseResolver,
		NewMigrator,
		NewLoader,
		NewCache,
		NewQueryService,
		NewHTTPHandler,
		NewHTTPServer,
		NewExportJob,
	),
)
