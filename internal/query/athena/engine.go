// Package athena runs queries on Amazon Athena through the AWS SDK v2.
package athena

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"

	"github.com/lakeshift/lakeshift/internal/awsutil"
	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/query"
)

// MaxResultsLimit is the largest page GetQueryResults returns.
const MaxResultsLimit = 1000

type Config struct {
	Credentials    awsutil.Credentials
	Database       string
	OutputLocation string
	WorkGroup      string
}

type api interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type Engine struct {
	client         api
	database       string
	outputLocation string
	workGroup      string
	logger         *slog.Logger
	newToken       func() string
}

var _ query.Engine = (*Engine)(nil)

func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	client := athena.New(athena.Options{
		Region:      cfg.Credentials.Region,
		Credentials: cfg.Credentials.Provider(),
	})
	return NewWithClient(cfg, client, logger)
}

func NewWithClient(cfg Config, client api, logger *slog.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("athena client is required")
	}
	if strings.TrimSpace(cfg.OutputLocation) == "" {
		return nil, fmt.Errorf("athena output location is required")
	}
	return &Engine{
		client:         client,
		database:       strings.TrimSpace(cfg.Database),
		outputLocation: strings.TrimSpace(cfg.OutputLocation),
		workGroup:      strings.TrimSpace(cfg.WorkGroup),
		logger:         observability.Discard(logger),
		newToken:       uuid.NewString,
	}, nil
}

func (e *Engine) Start(ctx context.Context, request query.Request) (query.ExecutionID, error) {
	database := strings.TrimSpace(request.Database)
	if database == "" {
		database = e.database
	}
	if database == "" {
		return "", fmt.Errorf("athena database is required")
	}

	input := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(request.SQL),
		QueryExecutionContext: &types.QueryExecutionContext{Database: aws.String(database)},
		ResultConfiguration:   &types.ResultConfiguration{OutputLocation: aws.String(e.outputLocation)},
		ClientRequestToken:    aws.String(e.newToken()),
	}
	if e.workGroup != "" {
		input.WorkGroup = aws.String(e.workGroup)
	}

	out, err := e.client.StartQueryExecution(ctx, input)
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", awsutil.DescribeError(err))
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", fmt.Errorf("start query execution: empty execution id")
	}
	e.logger.InfoContext(ctx, "query submitted",
		slog.String("execution_id", id),
		slog.String("database", database),
	)
	return query.ExecutionID(id), nil
}

func (e *Engine) Status(ctx context.Context, id query.ExecutionID) (query.Status, error) {
	out, err := e.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(string(id)),
	})
	if err != nil {
		return query.Status{}, fmt.Errorf("get query execution %s: %w", id, awsutil.DescribeError(err))
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return query.Status{}, fmt.Errorf("get query execution %s: missing status", id)
	}
	status := out.QueryExecution.Status
	return query.Status{
		State:  query.State(status.State),
		Reason: aws.ToString(status.StateChangeReason),
	}, nil
}

// Results fetches a single page. Further pages are reported through
// Truncated and never requested.
func (e *Engine) Results(ctx context.Context, id query.ExecutionID, maxRows int) (query.ResultSet, error) {
	if maxRows <= 0 || maxRows > MaxResultsLimit {
		maxRows = MaxResultsLimit
	}
	out, err := e.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(string(id)),
		MaxResults:       aws.Int32(int32(maxRows)),
	})
	if err != nil {
		return query.ResultSet{}, fmt.Errorf("get query results %s: %w", id, awsutil.DescribeError(err))
	}
	if out.ResultSet == nil {
		return query.ResultSet{}, fmt.Errorf("get query results %s: missing result set", id)
	}

	var labels []string
	if meta := out.ResultSet.ResultSetMetadata; meta != nil {
		labels = make([]string, len(meta.ColumnInfo))
		for i, info := range meta.ColumnInfo {
			labels[i] = aws.ToString(info.Label)
			if labels[i] == "" {
				labels[i] = aws.ToString(info.Name)
			}
		}
	}

	raw := make([][]*string, len(out.ResultSet.Rows))
	for i, row := range out.ResultSet.Rows {
		cells := make([]*string, len(row.Data))
		for j, datum := range row.Data {
			cells[j] = datum.VarCharValue
		}
		raw[i] = cells
	}

	tbl, err := query.ParseRawRows(labels, raw)
	if err != nil {
		return query.ResultSet{}, fmt.Errorf("parse query results %s: %w", id, err)
	}

	truncated := aws.ToString(out.NextToken) != ""
	if truncated {
		e.logger.WarnContext(ctx, "query results truncated to first page",
			slog.String("execution_id", string(id)),
			slog.Int("rows", tbl.NumRows()),
		)
	}
	return query.ResultSet{Table: tbl, Truncated: truncated}, nil
}
