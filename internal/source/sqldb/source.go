// Package sqldb implements source.Source over database/sql for MySQL and
// Postgres.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lakeshift/lakeshift/internal/observability"
	"github.com/lakeshift/lakeshift/internal/source"
	"github.com/lakeshift/lakeshift/internal/table"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver         string
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
}

type Source struct {
	db     *sql.DB
	driver string
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ source.Source = (*Source)(nil)

// Open connects and pings the database. The pool is closed again when the
// ping fails.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}
	db.SetMaxOpenConns(1)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping source db: %w", err)
	}

	return New(db, cfg.Driver, logger)
}

// New wraps an already opened pool. The Source takes ownership of db.
func New(db *sql.DB, driver string, logger *slog.Logger) (*Source, error) {
	if db == nil {
		return nil, fmt.Errorf("source db is required")
	}
	driver = normalizeDriver(driver)
	if driver != DriverMySQL && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported source driver %q", driver)
	}
	return &Source{db: db, driver: driver, logger: observability.Discard(logger)}, nil
}

func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// FetchTable reads every row of name with an unfiltered SELECT *.
func (s *Source) FetchTable(ctx context.Context, name string) (table.Table, error) {
	quote := byte('`')
	if s.driver == DriverPostgres {
		quote = '"'
	}
	ident, err := source.QuoteIdent(name, quote)
	if err != nil {
		return table.Table{}, err
	}

	started := time.Now()
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return table.Table{}, fmt.Errorf("query table %s: %w", name, err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return table.Table{}, fmt.Errorf("read column types for %s: %w", name, err)
	}

	raw := make([][]any, len(columnTypes))
	for rows.Next() {
		cells := make([]any, len(columnTypes))
		targets := make([]any, len(columnTypes))
		for i := range cells {
			targets[i] = &cells[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return table.Table{}, fmt.Errorf("scan table %s: %w", name, err)
		}
		for i, cell := range cells {
			raw[i] = append(raw[i], cell)
		}
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, fmt.Errorf("iterate table %s: %w", name, err)
	}

	out := table.Table{Columns: make([]table.Column, len(columnTypes))}
	for i, columnType := range columnTypes {
		out.Columns[i] = buildColumn(columnType.Name(), kindOf(columnType.DatabaseTypeName()), raw[i])
	}
	if err := out.Validate(); err != nil {
		return table.Table{}, fmt.Errorf("table %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "fetched source table",
		slog.String("table", name),
		slog.Int("rows", out.NumRows()),
		slog.Int("columns", len(out.Columns)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func dataSource(cfg Config) (string, string, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverMySQL:
		if cfg.DSN != "" {
			parsed, err := mysql.ParseDSN(cfg.DSN)
			if err != nil {
				return "", "", fmt.Errorf("parse mysql dsn: %w", err)
			}
			parsed.ParseTime = true
			return "mysql", parsed.FormatDSN(), nil
		}
		if cfg.Host == "" || cfg.User == "" || cfg.Database == "" {
			return "", "", fmt.Errorf("mysql host, user and database are required")
		}
		port := cfg.Port
		if port <= 0 {
			port = 3306
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Timeout = cfg.ConnectTimeout
		return "mysql", mc.FormatDSN(), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", "", fmt.Errorf("postgres source dsn is required")
		}
		return "pgx", cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}
}

func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return DriverMySQL
	}
	return driver
}

func kindOf(databaseType string) table.Kind {
	t := strings.ToUpper(strings.TrimSpace(databaseType))
	switch t {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT",
		"INT2", "INT4", "INT8", "YEAR":
		return table.Int64
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8", "DOUBLE PRECISION":
		return table.Float64
	case "BOOL", "BOOLEAN":
		return table.Bool
	// BIT arrives without its width, so BIT(1) stays bytes.
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "BIT", "GEOMETRY":
		return table.Bytes
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return table.Timestamp
	default:
		return table.String
	}
}

// buildColumn converts raw scanned values to kind. When any value does not
// convert, the whole column falls back to strings.
func buildColumn(name string, kind table.Kind, raw []any) table.Column {
	values := make([]any, len(raw))
	for i, value := range raw {
		converted, ok := convert(kind, value)
		if !ok {
			return stringColumn(name, raw)
		}
		values[i] = converted
	}
	return table.Column{Name: name, Kind: kind, Values: values}
}

func stringColumn(name string, raw []any) table.Column {
	values := make([]any, len(raw))
	for i, value := range raw {
		if value != nil {
			values[i] = stringify(value)
		}
	}
	return table.Column{Name: name, Kind: table.String, Values: values}
}

func convert(kind table.Kind, value any) (any, bool) {
	if value == nil {
		return nil, true
	}
	switch kind {
	case table.Int64:
		switch v := value.(type) {
		case int64:
			return v, true
		case int32:
			return int64(v), true
		case int16:
			return int64(v), true
		case int8:
			return int64(v), true
		case int:
			return int64(v), true
		case uint32:
			return int64(v), true
		case uint16:
			return int64(v), true
		case uint8:
			return int64(v), true
		case uint64:
			if v > 1<<63-1 {
				return nil, false
			}
			return int64(v), true
		case []byte:
			n, err := strconv.ParseInt(string(v), 10, 64)
			return n, err == nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			return n, err == nil
		}
	case table.Float64:
		switch v := value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case []byte:
			f, err := strconv.ParseFloat(string(v), 64)
			return f, err == nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			return f, err == nil
		}
	case table.Bool:
		switch v := value.(type) {
		case bool:
			return v, true
		case int64:
			return v != 0, true
		case []byte:
			b, err := strconv.ParseBool(string(v))
			return b, err == nil
		case string:
			b, err := strconv.ParseBool(v)
			return b, err == nil
		}
	case table.Bytes:
		switch v := value.(type) {
		case []byte:
			return append([]byte(nil), v...), true
		case string:
			return []byte(v), true
		}
	case table.Timestamp:
		switch v := value.(type) {
		case time.Time:
			return v, true
		}
	case table.String:
		return stringify(value), true
	}
	return nil, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
