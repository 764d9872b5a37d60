package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lakeshift/lakeshift/internal/columnar"
	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/query"
	"github.com/lakeshift/lakeshift/internal/storage"
)

// QueryRunner runs a SQL file on an engine and stores the first result page
// as a single Parquet object.
type QueryRunner struct {
	Engine     query.Engine
	Store      storage.ObjectStore
	Bucket     string
	Wait       query.WaitOptions
	MaxResults int
	Logger     *slog.Logger
}

type QueryRequest struct {
	SQLPath string
	// OutputKey defaults to outputs/query_results/<stem>.parquet.
	OutputKey string
	Database  string
}

type QueryResult struct {
	ExecutionID query.ExecutionID
	Key         string
	URI         string
	Rows        int64
	Truncated   bool
	Bytes       int
}

func (r *QueryRunner) Run(ctx context.Context, req QueryRequest) (result QueryResult, err error) {
	r.Logger = observability.Discard(r.Logger)
	started := time.Now()
	defer func() {
		observability.ObservePipelineRun(observability.PipelineQuery, err, time.Since(started))
	}()

	if r.Engine == nil || r.Store == nil {
		return QueryResult{}, fmt.Errorf("query pipeline requires an engine and an object store")
	}

	sqlText, err := LoadSQL(req.SQLPath)
	if err != nil {
		return QueryResult{}, r.stageErr(StageLoad, "", err)
	}
	key := strings.TrimSpace(req.OutputKey)
	if key == "" {
		key = storage.BuildQueryOutputKey(req.SQLPath)
	}

	wait := r.Wait
	if wait.Logger == nil {
		wait.Logger = r.Logger
	}
	id, rs, err := query.Run(ctx, r.Engine, query.Request{SQL: sqlText, Database: req.Database}, r.MaxResults, wait)
	if err != nil {
		stage := StageSubmit
		var stepErr *query.StepError
		if errors.As(err, &stepErr) {
			stage = stepErr.Step
			err = stepErr.Err
		}
		return QueryResult{ExecutionID: id}, r.stageErr(stage, id, err)
	}

	encoded, err := columnar.Encode(rs.Table)
	if err != nil {
		return QueryResult{ExecutionID: id}, r.stageErr(StageEncode, id, err)
	}
	info, err := r.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: columnar.ContentType})
	if err != nil {
		return QueryResult{ExecutionID: id}, r.stageErr(StageUpload, id, err)
	}
	if info.Key != "" {
		key = info.Key
	}
	observability.ObserveArtifact(observability.PipelineQuery, encoded.RowCount, len(encoded.Data))

	result = QueryResult{
		ExecutionID: id,
		Key:         key,
		URI:         storage.URI(r.Bucket, key),
		Rows:        encoded.RowCount,
		Truncated:   rs.Truncated,
		Bytes:       len(encoded.Data),
	}
	r.Logger.InfoContext(ctx, "query results stored",
		slog.String("execution_id", string(id)),
		slog.String("key", key),
		slog.Int64("rows", result.Rows),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (r *QueryRunner) stageErr(stage string, id query.ExecutionID, err error) error {
	r.Logger.Error("query pipeline failed",
		slog.String("stage", stage),
		slog.String("execution_id", string(id)),
		slog.Any("error", err),
	)
	if id != "" {
		err = fmt.Errorf("execution %s: %w", id, err)
	}
	return &StageError{Pipeline: observability.PipelineQuery, Stage: stage, Err: err}
}
