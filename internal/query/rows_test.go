package query

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string {
	return &s
}

func TestParseRawRowsDropsHeaderAndKeepsNulls(t *testing.T) {
	rows := [][]*string{
		{strPtr("id"), strPtr("name")},
		{strPtr("1"), strPtr("alice")},
		{strPtr("2"), nil},
	}

	got, err := ParseRawRows([]string{"id", "name"}, rows)
	if err != nil {
		t.Fatalf("ParseRawRows() error = %v", err)
	}
	if !reflect.DeepEqual(got.Names(), []string{"id", "name"}) {
		t.Fatalf("Names() = %v", got.Names())
	}
	if got.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", got.NumRows())
	}
	if !reflect.DeepEqual(got.Row(0), []any{"1", "alice"}) {
		t.Fatalf("Row(0) = %#v", got.Row(0))
	}
	if !reflect.DeepEqual(got.Row(1), []any{"2", nil}) {
		t.Fatalf("Row(1) = %#v", got.Row(1))
	}
}

func TestParseRawRowsPadsShortRows(t *testing.T) {
	rows := [][]*string{
		{strPtr("a"), strPtr("b"), strPtr("c")},
		{strPtr("x")},
	}

	got, err := ParseRawRows([]string{"a", "b", "c"}, rows)
	if err != nil {
		t.Fatalf("ParseRawRows() error = %v", err)
	}
	if !reflect.DeepEqual(got.Row(0), []any{"x", nil, nil}) {
		t.Fatalf("Row(0) = %#v", got.Row(0))
	}
}

func TestParseRawRowsUsesHeaderWhenLabelsMissing(t *testing.T) {
	rows := [][]*string{
		{strPtr("total"), nil},
		{strPtr("42"), strPtr("x")},
	}

	got, err := ParseRawRows(nil, rows)
	if err != nil {
		t.Fatalf("ParseRawRows() error = %v", err)
	}
	if !reflect.DeepEqual(got.Names(), []string{"total", "_col1"}) {
		t.Fatalf("Names() = %v", got.Names())
	}
}

func TestParseRawRowsHeaderOnly(t *testing.T) {
	got, err := ParseRawRows([]string{"id"}, [][]*string{{strPtr("id")}})
	if err != nil {
		t.Fatalf("ParseRawRows() error = %v", err)
	}
	if got.NumRows() != 0 || len(got.Columns) != 1 {
		t.Fatalf("table = %#v", got)
	}
}

func TestUniqueLabels(t *testing.T) {
	got := uniqueLabels([]string{"a", "a", "", "a_2", "b"})
	want := []string{"a", "a_2", "_col2", "a_2_2", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniqueLabels() = %v, want %v", got, want)
	}
}
