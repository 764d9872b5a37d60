package source

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lakeshift/lakeshift/internal/storage"
)

func TestQuoteIdent(t *testing.T) {
	got, err := QuoteIdent("sales.orders", '`')
	if err != nil {
		t.Fatalf("QuoteIdent() error = %v", err)
	}
	if got != "`sales`.`orders`" {
		t.Fatalf("QuoteIdent() = %q", got)
	}
	got, err = QuoteIdent("orders", '"')
	if err != nil {
		t.Fatalf("QuoteIdent() error = %v", err)
	}
	if got != `"orders"` {
		t.Fatalf("QuoteIdent() = %q", got)
	}
}

func TestValidateTableNameRejectsInjection(t *testing.T) {
	for _, name := range []string{
		"",
		"orders; DROP TABLE users",
		"orders--",
		"a.b.c",
		"1orders",
		"`orders`",
		"orders WHERE 1=1",
	} {
		err := ValidateTableName(name)
		if !errors.Is(err, ErrInvalidTableName) {
			t.Fatalf("ValidateTableName(%q) error = %v", name, err)
		}
	}
}

func TestValidateTableNameLengthMatchesExportKey(t *testing.T) {
	longest := "t" + strings.Repeat("x", MaxTableNameLength-1)
	if err := ValidateTableName(longest); err != nil {
		t.Fatalf("ValidateTableName(%d chars) error = %v", len(longest), err)
	}
	if _, err := storage.BuildExportKey(longest, time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("BuildExportKey(%d chars) error = %v", len(longest), err)
	}

	tooLong := longest + "x"
	if err := ValidateTableName(tooLong); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("ValidateTableName(%d chars) error = %v", len(tooLong), err)
	}
}
