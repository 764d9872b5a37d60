// Package duckdb runs query files against a local DuckDB database so the
// query pipeline can be exercised without Athena.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/query"
)

type outcome struct {
	columns []string
	rows    [][]*string
	err     error
}

// Engine executes statements synchronously in Start and keeps each outcome
// under its execution id until Results is read.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	outcomes map[query.ExecutionID]outcome
}

var _ query.Engine = (*Engine)(nil)

// Open opens the database at path, or an in-memory database when path is
// empty.
func Open(path string, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{
		db:       db,
		logger:   observability.Discard(logger),
		outcomes: map[query.ExecutionID]outcome{},
	}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Start(ctx context.Context, request query.Request) (query.ExecutionID, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return "", fmt.Errorf("sql is required")
	}

	id := query.ExecutionID(uuid.NewString())
	start := time.Now()
	result := e.execute(ctx, strings.TrimSpace(request.Database), sqlText)

	e.mu.Lock()
	e.outcomes[id] = result
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "query executed",
		slog.String("execution_id", string(id)),
		slog.Bool("ok", result.err == nil),
		slog.Int("rows", len(result.rows)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return id, nil
}

func (e *Engine) Status(_ context.Context, id query.ExecutionID) (query.Status, error) {
	result, ok := e.lookup(id)
	if !ok {
		return query.Status{}, fmt.Errorf("unknown execution id %s", id)
	}
	if result.err != nil {
		return query.Status{State: query.StateFailed, Reason: result.err.Error()}, nil
	}
	return query.Status{State: query.StateSucceeded}, nil
}

func (e *Engine) Results(_ context.Context, id query.ExecutionID, maxRows int) (query.ResultSet, error) {
	result, ok := e.lookup(id)
	if !ok {
		return query.ResultSet{}, fmt.Errorf("unknown execution id %s", id)
	}
	if result.err != nil {
		return query.ResultSet{}, fmt.Errorf("execution %s failed: %w", id, result.err)
	}

	rows := result.rows
	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	header := make([]*string, len(result.columns))
	for i := range result.columns {
		header[i] = &result.columns[i]
	}
	tbl, err := query.ParseRawRows(result.columns, append([][]*string{header}, rows...))
	if err != nil {
		return query.ResultSet{}, err
	}
	return query.ResultSet{Table: tbl, Truncated: truncated}, nil
}

func (e *Engine) lookup(id query.ExecutionID) (outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, ok := e.outcomes[id]
	return result, ok
}

// execute runs sqlText on a dedicated connection so the optional schema
// setting applies to it.
func (e *Engine) execute(ctx context.Context, schema, sqlText string) outcome {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return outcome{err: fmt.Errorf("acquire duckdb connection: %w", err)}
	}
	defer func() { _ = conn.Close() }()

	if schema != "" {
		if _, err := conn.ExecContext(ctx, "SET schema = "+quoteLiteral(schema)); err != nil {
			return outcome{err: fmt.Errorf("set schema %q: %w", schema, err)}
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return outcome{err: fmt.Errorf("execute query: %w", err)}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return outcome{err: fmt.Errorf("query columns: %w", err)}
	}

	resultRows := make([][]*string, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return outcome{err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, renderValues(values))
	}
	if err := rows.Err(); err != nil {
		return outcome{err: fmt.Errorf("iterate rows: %w", err)}
	}
	return outcome{columns: columns, rows: resultRows}
}

// renderValues formats every value as text, matching the all-string shape
// remote engines return.
func renderValues(values []any) []*string {
	rendered := make([]*string, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		var text string
		switch typed := value.(type) {
		case string:
			text = typed
		case []byte:
			text = string(typed)
		case time.Time:
			text = typed.Format(time.RFC3339Nano)
		default:
			text = fmt.Sprint(typed)
		}
		rendered[i] = &text
	}
	return rendered
}

func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
