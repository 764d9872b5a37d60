package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lakeshift/lakeshift/internal/source"
	"github.com/lakeshift/lakeshift/internal/table"
)

func TestFetchTableMapsKindsAndKeepsOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	src, err := New(db, DriverMySQL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	created := time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC)
	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("BIGINT", int64(0)),
		mock.NewColumn("name").OfType("VARCHAR", ""),
		mock.NewColumn("score").OfType("DOUBLE", float64(0)),
		mock.NewColumn("active").OfType("BOOL", false),
		mock.NewColumn("created_at").OfType("DATETIME", time.Time{}),
		mock.NewColumn("price").OfType("DECIMAL", ""),
	).
		AddRow(int64(1), "alice", 1.5, true, created, []byte("10.20")).
		AddRow(int64(2), nil, nil, false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders`")).WillReturnRows(rows)

	got, err := src.FetchTable(context.Background(), "orders")
	if err != nil {
		t.Fatalf("FetchTable() error = %v", err)
	}
	assertSQLMock(t, mock)

	wantNames := []string{"id", "name", "score", "active", "created_at", "price"}
	if strings.Join(got.Names(), ",") != strings.Join(wantNames, ",") {
		t.Fatalf("Names() = %v, want %v", got.Names(), wantNames)
	}
	wantKinds := []table.Kind{table.Int64, table.String, table.Float64, table.Bool, table.Timestamp, table.String}
	for i, kind := range wantKinds {
		if got.Columns[i].Kind != kind {
			t.Fatalf("column %q kind = %s, want %s", got.Columns[i].Name, got.Columns[i].Kind, kind)
		}
	}
	if got.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", got.NumRows())
	}
	first := got.Row(0)
	if first[0] != int64(1) || first[1] != "alice" || first[2] != 1.5 || first[3] != true || first[5] != "10.20" {
		t.Fatalf("Row(0) = %#v", first)
	}
	if ts, ok := first[4].(time.Time); !ok || !ts.Equal(created) {
		t.Fatalf("created_at = %#v", first[4])
	}
	second := got.Row(1)
	if second[1] != nil || second[2] != nil || second[4] != nil || second[5] != nil {
		t.Fatalf("Row(1) nulls = %#v", second)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		databaseType string
		want         table.Kind
	}{
		{"BIGINT", table.Int64},
		{"unsigned int", table.Int64},
		{"DOUBLE", table.Float64},
		{"BOOL", table.Bool},
		{"BIT", table.Bytes},
		{"BYTEA", table.Bytes},
		{"TIMESTAMPTZ", table.Timestamp},
		{"DECIMAL", table.String},
		{"JSON", table.String},
	}
	for _, tt := range tests {
		if got := kindOf(tt.databaseType); got != tt.want {
			t.Fatalf("kindOf(%q) = %s, want %s", tt.databaseType, got, tt.want)
		}
	}
}

func TestFetchTableFallsBackToStringsOnBadValues(t *testing.T) {
	db, mock := newSQLMock(t)
	src, err := New(db, DriverMySQL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("qty").OfType("INT", int64(0)),
	).
		AddRow([]byte("7")).
		AddRow([]byte("n/a"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `stock`")).WillReturnRows(rows)

	got, err := src.FetchTable(context.Background(), "stock")
	if err != nil {
		t.Fatalf("FetchTable() error = %v", err)
	}
	assertSQLMock(t, mock)
	column := got.Columns[0]
	if column.Kind != table.String {
		t.Fatalf("kind = %s, want string", column.Kind)
	}
	if column.Values[0] != "7" || column.Values[1] != "n/a" {
		t.Fatalf("values = %#v", column.Values)
	}
}

func TestFetchTableQuotesPostgresIdentifiers(t *testing.T) {
	db, mock := newSQLMock(t)
	src, err := New(db, DriverPostgres, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."events"`)).
		WillReturnRows(mock.NewRowsWithColumnDefinition(mock.NewColumn("id").OfType("UUID", "")).AddRow("e-1"))

	got, err := src.FetchTable(context.Background(), "public.events")
	if err != nil {
		t.Fatalf("FetchTable() error = %v", err)
	}
	assertSQLMock(t, mock)
	if got.NumRows() != 1 || got.Columns[0].Values[0] != "e-1" {
		t.Fatalf("table = %#v", got)
	}
}

func TestFetchTableRejectsInjectedNameWithoutQuerying(t *testing.T) {
	db, mock := newSQLMock(t)
	src, err := New(db, DriverMySQL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = src.FetchTable(context.Background(), "orders; DROP TABLE orders")
	if !errors.Is(err, source.ErrInvalidTableName) {
		t.Fatalf("FetchTable() error = %v, want ErrInvalidTableName", err)
	}
	assertSQLMock(t, mock)
}

func TestFetchTablePropagatesDriverErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	src, err := New(db, DriverMySQL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `missing`")).WillReturnError(sql.ErrConnDone)

	_, err = src.FetchTable(context.Background(), "missing")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("FetchTable() error = %v, want sql.ErrConnDone", err)
	}
	assertSQLMock(t, mock)
}

func TestCloseIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectClose()

	src, err := New(db, DriverMySQL, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestDataSource(t *testing.T) {
	driver, dsn, err := dataSource(Config{
		Host:     "db.internal",
		Port:     3307,
		User:     "reader",
		Password: "secret",
		Database: "shop",
	})
	if err != nil {
		t.Fatalf("dataSource() error = %v", err)
	}
	if driver != "mysql" {
		t.Fatalf("driver = %q, want mysql", driver)
	}
	for _, part := range []string{"reader:secret@tcp(db.internal:3307)/shop", "parseTime=true"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %q does not contain %q", dsn, part)
		}
	}

	driver, dsn, err = dataSource(Config{Driver: "postgres", DSN: "postgres://u:p@localhost/db"})
	if err != nil {
		t.Fatalf("dataSource(postgres) error = %v", err)
	}
	if driver != "pgx" || dsn != "postgres://u:p@localhost/db" {
		t.Fatalf("dataSource(postgres) = %q, %q", driver, dsn)
	}

	if _, _, err := dataSource(Config{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
	if _, _, err := dataSource(Config{Host: "db"}); err == nil {
		t.Fatal("expected error for incomplete mysql config")
	}
	if _, _, err := dataSource(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenRejectsUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "sqlite"}, nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
