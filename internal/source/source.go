// Package source reads whole relational tables into memory.
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lakeshift/lakeshift/internal/table"
)

var ErrInvalidTableName = errors.New("invalid table name")

// MaxTableNameLength is also the longest path component an export key accepts.
const MaxTableNameLength = 128

type Source interface {
	FetchTable(ctx context.Context, name string) (table.Table, error)
	Close() error
}

// identifierPattern accepts table or schema.table with plain identifier parts.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// ValidateTableName rejects anything that is not a plain, optionally
// schema-qualified identifier.
func ValidateTableName(name string) error {
	if len(name) > MaxTableNameLength || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// QuoteIdent validates name and quotes each dot-separated part with quote.
func QuoteIdent(name string, quote byte) (string, error) {
	if err := ValidateTableName(name); err != nil {
		return "", err
	}
	q := string(quote)
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = q + part + q
	}
	return strings.Join(parts, "."), nil
}
