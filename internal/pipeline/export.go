// Package pipeline wires sources, query engines, the columnar encoder and
// object stores into the export and query pipelines.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lakeshift/lakeshift/internal/columnar"
	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/source"
	"github.com/lakeshift/lakeshift/internal/storage"
)

// Exporter copies one relational table into a single Parquet object. It does
// not close Source.
type Exporter struct {
	Source source.Source
	Store  storage.ObjectStore
	Bucket string
	Clock  func() time.Time
	Logger *slog.Logger
}

type ExportResult struct {
	Key   string
	URI   string
	Rows  int64
	Bytes int
}

func (e *Exporter) Run(ctx context.Context, tableName string) (result ExportResult, err error) {
	e.ensureDefaults()
	started := time.Now()
	defer func() {
		observability.ObservePipelineRun(observability.PipelineExport, err, time.Since(started))
	}()

	if e.Source == nil || e.Store == nil {
		return ExportResult{}, fmt.Errorf("export pipeline requires a source and an object store")
	}
	if err := source.ValidateTableName(tableName); err != nil {
		return ExportResult{}, e.stageErr(StageFetch, err)
	}

	tbl, err := e.Source.FetchTable(ctx, tableName)
	if err != nil {
		return ExportResult{}, e.stageErr(StageFetch, err)
	}

	encoded, err := columnar.Encode(tbl)
	if err != nil {
		return ExportResult{}, e.stageErr(StageEncode, err)
	}

	key, err := storage.BuildExportKey(tableName, e.Clock())
	if err != nil {
		return ExportResult{}, e.stageErr(StageUpload, err)
	}
	info, err := e.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: columnar.ContentType})
	if err != nil {
		return ExportResult{}, e.stageErr(StageUpload, err)
	}
	if info.Key != "" {
		key = info.Key
	}
	observability.ObserveArtifact(observability.PipelineExport, encoded.RowCount, len(encoded.Data))

	result = ExportResult{
		Key:   key,
		URI:   storage.URI(e.Bucket, key),
		Rows:  encoded.RowCount,
		Bytes: len(encoded.Data),
	}
	e.Logger.InfoContext(ctx, "table exported",
		slog.String("table", tableName),
		slog.String("key", key),
		slog.Int64("rows", result.Rows),
		slog.Int("bytes", result.Bytes),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (e *Exporter) ensureDefaults() {
	if e.Clock == nil {
		e.Clock = time.Now
	}
	e.Logger = observability.Discard(e.Logger)
}

func (e *Exporter) stageErr(stage string, err error) error {
	e.Logger.Error("export failed", slog.String("stage", stage), slog.Any("error", err))
	return &StageError{Pipeline: observability.PipelineExport, Stage: stage, Err: err}
}
