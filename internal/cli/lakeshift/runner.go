// Package lakeshift implements the lakeshift command: export a relational
// table to object storage, run a query file and store its results, or both.
package lakeshift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lakeshift/lakeshift/internal/config"
	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/pipeline"
	"github.com/lakeshift/lakeshift/internal/query"
	"github.com/lakeshift/lakeshift/internal/source"
	"github.com/lakeshift/lakeshift/internal/storage"
)

const serviceName = "lakeshift"

var errUsage = errors.New("nothing to do: pass --mysql-table and/or --sql-file")

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Lookup replaces the process environment and .env file.
	Lookup    config.LookupFunc
	Factories Factories
	Clock     func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

type flags struct {
	table           string
	sqlFile         string
	output          string
	database        string
	metricsTextfile string
}

// Run executes the command and returns the process exit code: 0 when every
// requested pipeline succeeded, 1 otherwise.
func Run(ctx context.Context, args []string, opts Options) (code int) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(stderr, "unexpected error: %v\n", r)
			code = 1
		}
	}()

	var f flags
	cmd := newRootCmd(&f)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if f.table == "" && f.sqlFile == "" {
			_, _ = fmt.Fprint(stderr, cmd.UsageString())
			return errUsage
		}
		return execute(cmd.Context(), f, opts, stdout, stderr)
	}

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lakeshift",
		Short:         "Export tables and query results to S3 as Parquet",
		Long:          "Export a MySQL table to S3 as Parquet, run an Athena SQL file and store its results as Parquet, or both.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})

	fs := cmd.Flags()
	fs.SortFlags = false
	fs.StringVar(&f.table, "mysql-table", "", "MySQL table to export to S3")
	fs.StringVar(&f.sqlFile, "sql-file", "", "path of the .sql file to run on Athena")
	fs.StringVar(&f.output, "output", "", "S3 key for the query results (default outputs/query_results/<stem>.parquet)")
	fs.StringVar(&f.database, "database", "", "Athena database (default ATHENA_DATABASE)")
	fs.StringVar(&f.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	return cmd
}

func execute(ctx context.Context, f flags, opts Options, stdout, stderr io.Writer) error {
	if f.sqlFile != "" {
		if _, err := pipeline.ValidateSQLFile(f.sqlFile); err != nil {
			return err
		}
	}

	var (
		cfg config.Config
		err error
	)
	if opts.Lookup != nil {
		cfg, err = config.Load(serviceName, opts.Lookup)
	} else {
		cfg, err = config.LoadFromEnv(serviceName)
	}
	if err != nil {
		return err
	}
	if f.metricsTextfile != "" {
		cfg.Observability.MetricsTextfile = f.metricsTextfile
	}
	logger := observability.NewLogger(cfg, stderr)
	defer func() {
		if err := observability.WriteTextfile(cfg.Observability.MetricsTextfile); err != nil {
			logger.Warn("metrics textfile not written", slog.Any("error", err))
		}
	}()

	r := &run{cfg: cfg, opts: opts, factories: opts.Factories.withDefaults(), logger: logger, stdout: stdout}
	var failures []error
	if f.table != "" {
		if err := r.export(ctx, f.table); err != nil {
			failures = append(failures, err)
		}
	}
	if f.sqlFile != "" {
		if err := r.query(ctx, f); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

type run struct {
	cfg       config.Config
	opts      Options
	factories Factories
	logger    *slog.Logger
	stdout    io.Writer

	store storage.ObjectStore
}

func (r *run) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := r.factories.Store(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}
	r.store = store
	return store, nil
}

func (r *run) export(ctx context.Context, tableName string) error {
	if err := source.ValidateTableName(tableName); err != nil {
		return err
	}
	if err := r.cfg.ValidateExport(); err != nil {
		return err
	}
	store, err := r.objectStore(ctx)
	if err != nil {
		return err
	}
	src, err := r.factories.Source(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			r.logger.Warn("close source", slog.Any("error", err))
		}
	}()

	exporter := &pipeline.Exporter{
		Source: src,
		Store:  store,
		Bucket: r.cfg.ObjectStore.Bucket,
		Clock:  r.opts.Clock,
		Logger: r.logger,
	}
	result, err := exporter.Run(ctx, tableName)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(r.stdout, result.URI)
	return nil
}

func (r *run) query(ctx context.Context, f flags) error {
	if err := r.cfg.ValidateQuery(); err != nil {
		return err
	}
	store, err := r.objectStore(ctx)
	if err != nil {
		return err
	}
	engine, err := r.factories.Engine(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("create query engine: %w", err)
	}
	if closer, ok := engine.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	runner := &pipeline.QueryRunner{
		Engine: engine,
		Store:  store,
		Bucket: r.cfg.ObjectStore.Bucket,
		Wait: query.WaitOptions{
			Interval:    r.cfg.Query.PollInterval,
			Timeout:     r.cfg.Query.Timeout,
			MaxAttempts: r.cfg.Query.MaxAttempts,
			Sleep:       r.opts.Sleep,
			Logger:      r.logger,
		},
		MaxResults: r.cfg.Query.MaxResults,
		Logger:     r.logger,
	}
	result, err := runner.Run(ctx, pipeline.QueryRequest{
		SQLPath:   f.sqlFile,
		OutputKey: f.output,
		Database:  f.database,
	})
	if err != nil {
		return err
	}
	if result.Truncated {
		r.logger.Warn("stored results are limited to the first page",
			slog.String("execution_id", string(result.ExecutionID)),
			slog.Int64("rows", result.Rows),
		)
	}
	_, _ = fmt.Fprintln(r.stdout, result.URI)
	return nil
}
