package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/export"
	"github.com/tigerroll/bikeshare/internal/query"
	"github.com/tigerroll/bikeshare/internal/server"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Options carries what main.go hands to every command.
type Options struct {
	// Config is the bootstrapped configuration.
	Config *config.Config
	// Migrations holds migrations/<database type>/*.sql.
	Migrations fs.FS
	// ProviderOptions selects the storage and database providers.
	ProviderOptions []fx.Option
}

func (o Options) newApp(populate ...interface{}) *fx.App {
	return fx.New(
		fx.Supply(o.Config),
		fx.Provide(func() MigrationsFS { return o.Migrations }),
		fx.Options(o.ProviderOptions...),
		logger.Module,
		Module,
		fx.Populate(populate...),
	)
}

func stopApp(app *fx.App) {
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application shutdown failed: %v", err)
	}
}

// RunServe serves the query API until ctx is cancelled.
func RunServe(ctx context.Context, opts Options) error {
	var srv *server.Server
	app := opts.newApp(&srv)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	logger.Infof("bikeshare API serving on %s", srv.Addr())

	select {
	case <-ctx.Done():
		logger.Warnf("Shutdown requested.")
	case sig := <-app.Done():
		logger.Warnf("Received signal '%v'.", sig)
	}
	stopApp(app)
	return nil
}

// ExportRequest is one run of the export command.
type ExportRequest struct {
	// Format overrides the configured export format when set.
	Format string
	// Filter restricts the exported records. Nil exports every record.
	// Nil year or season sets resolve to every value in the dataset.
	Filter *query.Request
}

// RunExport runs one export job.
func RunExport(ctx context.Context, opts Options, req ExportRequest) (*export.Result, error) {
	var (
		job *export.Job
		svc *query.Service
	)
	app := opts.newApp(&job, &svc)
	if err := app.Err(); err != nil {
		return nil, err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	defer stopApp(app)

	exportReq := export.Request{Format: req.Format}
	if req.Filter != nil {
		choices, err := svc.Options(ctx)
		if err != nil {
			return nil, err
		}
		criteria := req.Filter.Criteria(choices)
		exportReq.Criteria = &criteria
	}
	return job.Run(ctx, exportReq)
}

// RunSummary runs one query and prints the headline metrics and views to out.
func RunSummary(ctx context.Context, opts Options, req query.Request, out io.Writer) (*query.Response, error) {
	var svc *query.Service
	app := opts.newApp(&svc)
	if err := app.Err(); err != nil {
		return nil, err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	defer stopApp(app)

	resp, err := svc.Query(ctx, "", req)
	if err != nil {
		return nil, err
	}
	if err := PrintSummary(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PrintSummary renders resp as aligned text.
func PrintSummary(out io.Writer, resp *query.Response) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	years := make([]string, len(resp.Criteria.Years))
	for i, y := range resp.Criteria.Years {
		years[i] = fmt.Sprint(y)
	}
	seasons := make([]string, len(resp.Criteria.Seasons))
	for i, s := range resp.Criteria.Seasons {
		seasons[i] = string(s)
	}

	fmt.Fprintf(tw, "Source\t%s\n", resp.Source)
	fmt.Fprintf(tw, "Years\t%s\n", strings.Join(years, ", "))
	fmt.Fprintf(tw, "Seasons\t%s\n", strings.Join(seasons, ", "))
	fmt.Fprintf(tw, "Day type\t%s\n", resp.Criteria.WorkingDayLabel)
	fmt.Fprintf(tw, "Matched\t%d\n\n", resp.Matched)
	fmt.Fprintf(tw, "Total rentals\t%s\n", resp.Display.Total)
	fmt.Fprintf(tw, "Average hourly\t%s\n", resp.Display.MeanHourly)
	fmt.Fprintf(tw, "Max hourly\t%s\n", resp.Display.MaxHourly)

	if len(resp.Views.ByDayPeriod) > 0 {
		fmt.Fprintf(tw, "\nDay period\tMean\tCount\t95%% CI\n")
		for _, g := range resp.Views.ByDayPeriod {
			fmt.Fprintf(tw, "%s\t%.1f\t%d\t%.1f - %.1f\n", g.Key, g.Mean, g.Count, g.CILower, g.CIUpper)
		}
		fmt.Fprintf(tw, "\nSeason\tMean\tCount\t95%% CI\n")
		for _, g := range resp.Views.BySeason {
			fmt.Fprintf(tw, "%s\t%.1f\t%d\t%.1f - %.1f\n", g.Key, g.Mean, g.Count, g.CILower, g.CIUpper)
		}
	}
	return tw.Flush()
}

// ExportSummary formats an export result for the console.
func ExportSummary(res *export.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Export %s (%s): read %d, filtered %d, written %d in %s\n",
		res.ExportID, res.Format, res.Execution.ReadCount, res.Execution.FilterCount, res.Execution.WriteCount,
		res.Execution.Duration().Round(time.Millisecond))
	for _, o := range res.Objects {
		fmt.Fprintf(&b, "  %s\n", o)
	}
	return b.String()
}
