package lakeshift

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lakeshift/lakeshift/internal/awsutil"
	"github.com/lakeshift/lakeshift/internal/config"
	"github.com/lakeshift/lakeshift/internal/query"
	"github.com/lakeshift/lakeshift/internal/query/athena"
	"github.com/lakeshift/lakeshift/internal/query/duckdb"
	"github.com/lakeshift/lakeshift/internal/source"
	"github.com/lakeshift/lakeshift/internal/source/sqldb"
	"github.com/lakeshift/lakeshift/internal/storage"
	"github.com/lakeshift/lakeshift/internal/storage/minio"
	"github.com/lakeshift/lakeshift/internal/storage/s3"
)

// Factories build the adapters a run needs. Each is called at most once per
// run and only after the configuration for its pipeline has been validated.
type Factories struct {
	Source func(ctx context.Context, cfg config.Config, logger *slog.Logger) (source.Source, error)
	Engine func(ctx context.Context, cfg config.Config, logger *slog.Logger) (query.Engine, error)
	Store  func(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.ObjectStore, error)
}

func DefaultFactories() Factories {
	return Factories{
		Source: newSource,
		Engine: newEngine,
		Store:  newStore,
	}
}

func (f Factories) withDefaults() Factories {
	defaults := DefaultFactories()
	if f.Source == nil {
		f.Source = defaults.Source
	}
	if f.Engine == nil {
		f.Engine = defaults.Engine
	}
	if f.Store == nil {
		f.Store = defaults.Store
	}
	return f
}

func credentials(cfg config.Config) awsutil.Credentials {
	return awsutil.Credentials{
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
		Region:          cfg.AWS.Region,
	}
}

func newSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (source.Source, error) {
	return sqldb.Open(ctx, sqldb.Config{
		Driver:         cfg.Source.Driver,
		DSN:            cfg.Source.DSN,
		Host:           cfg.Source.Host,
		Port:           cfg.Source.Port,
		User:           cfg.Source.User,
		Password:       cfg.Source.Password,
		Database:       cfg.Source.Database,
		ConnectTimeout: cfg.Source.ConnectTimeout,
	}, logger)
}

func newEngine(_ context.Context, cfg config.Config, logger *slog.Logger) (query.Engine, error) {
	switch cfg.Query.Engine {
	case config.QueryEngineAthena:
		return athena.New(athena.Config{
			Credentials:    credentials(cfg),
			Database:       cfg.Query.Database,
			OutputLocation: cfg.Query.OutputLocation,
			WorkGroup:      cfg.Query.WorkGroup,
		}, logger)
	case config.QueryEngineDuckDB:
		return duckdb.Open(cfg.Query.DuckDBPath, logger)
	default:
		return nil, fmt.Errorf("unsupported query engine %q", cfg.Query.Engine)
	}
}

func newStore(ctx context.Context, cfg config.Config, _ *slog.Logger) (storage.ObjectStore, error) {
	switch cfg.ObjectStore.Driver {
	case config.ObjectStoreDriverS3:
		return s3.New(s3.Config{
			Credentials: credentials(cfg),
			Bucket:      cfg.ObjectStore.Bucket,
			Prefix:      cfg.ObjectStore.Prefix,
			Endpoint:    cfg.ObjectStore.Endpoint,
		})
	case config.ObjectStoreDriverMinio:
		return minio.New(ctx, minio.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.AWS.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			SessionToken:     cfg.AWS.SessionToken,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported object store driver %q", cfg.ObjectStore.Driver)
	}
}
