package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/app"
	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/query"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// embeddedConfig is the default application configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// migrationsFS bundles the export schema migrations into the binary.
//
//go:embed all:resources/migrations
var migrationsFS embed.FS

type flags struct {
	envFile    string
	years      []int
	seasons    []string
	workingDay bool
	format     string
	address    string
}

// selectProviders picks the provider modules named in a comma separated
// environment variable, or all of them when it is unset.
func selectProviders(envVar string, modules map[string]fx.Option) []fx.Option {
	names := os.Getenv(envVar)
	if names == "" {
		options := make([]fx.Option, 0, len(modules))
		for _, m := range modules {
			options = append(options, m)
		}
		return options
	}
	var options []fx.Option
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m, ok := modules[name]; ok {
			options = append(options, m)
			logger.Debugf("Provider '%s' selected (%s).", name, envVar)
		} else {
			logger.Warnf("Provider '%s' in %s is not supported. Skipping.", name, envVar)
		}
	}
	return options
}

func (f *flags) options() (app.Options, error) {
	cfg, err := config.Bootstrap(f.envFile, embeddedConfig)
	if err != nil {
		return app.Options{}, err
	}
	if f.address != "" {
		cfg.Bikeshare.Server.Address = f.address
	}
	sub, err := fs.Sub(migrationsFS, "resources")
	if err != nil {
		return app.Options{}, err
	}
	providers := append(selectProviders("STORAGE_ADAPTORS", app.StorageProviderModules),
		selectProviders("DB_ADAPTORS", app.DBProviderModules)...)
	return app.Options{Config: cfg, Migrations: sub, ProviderOptions: providers}, nil
}

func (f *flags) queryRequest(cmd *cobra.Command) (query.Request, error) {
	req := query.Request{WorkingDay: f.workingDay}
	if cmd.Flags().Changed("year") {
		req.Years = append([]int{}, f.years...)
	}
	if cmd.Flags().Changed("season") {
		req.Seasons = make([]model.Season, 0, len(f.seasons))
		for _, name := range f.seasons {
			s, err := model.ParseSeason(name)
			if err != nil {
				return query.Request{}, err
			}
			req.Seasons = append(req.Seasons, s)
		}
	}
	return req, nil
}

func newRootCmd(ctx context.Context) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "bikeshare",
		Short:         "Bike rental dashboard: query API, export and summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.envFile, "env-file", envOr("ENV_FILE_PATH", ".env"), "path to a .env file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			return app.RunServe(ctx, opts)
		},
	}
	serve.Flags().StringVar(&f.address, "address", "", "listen address (overrides bikeshare.server.address)")

	addCriteriaFlags := func(cmd *cobra.Command) {
		cmd.Flags().IntSliceVar(&f.years, "year", nil, "year to include (repeatable); default all years")
		cmd.Flags().StringSliceVar(&f.seasons, "season", nil, "season to include (repeatable); default all seasons")
		cmd.Flags().BoolVar(&f.workingDay, "working-day", false, "select working days instead of non-working days")
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the enriched dataset as Parquet files or database rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			req := app.ExportRequest{Format: f.format}
			if cmd.Flags().Changed("year") || cmd.Flags().Changed("season") || cmd.Flags().Changed("working-day") {
				filter, err := f.queryRequest(cmd)
				if err != nil {
					return err
				}
				req.Filter = &filter
			}
			res, err := app.RunExport(ctx, opts, req)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), app.ExportSummary(res))
			return nil
		},
	}
	addCriteriaFlags(exportCmd)
	exportCmd.Flags().StringVar(&f.format, "format", "", "parquet or database (overrides bikeshare.export.format)")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Print the headline metrics of one query",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			req, err := f.queryRequest(cmd)
			if err != nil {
				return err
			}
			_, err = app.RunSummary(ctx, opts, req, cmd.OutOrStdout())
			return err
		},
	}
	addCriteriaFlags(summary)

	root.AddCommand(serve, exportCmd, summary)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(ctx).Execute(); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
