package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._$-]{0,127}$`)

const exportTimestampLayout = "20060102_150405"

// BuildExportKey returns data/<table>/<YYYYMMDD_HHMMSS>.parquet.
func BuildExportKey(tableName string, ts time.Time) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join("data", tableName, ts.Format(exportTimestampLayout)+".parquet"), nil
}

// BuildQueryOutputKey returns outputs/query_results/<stem>.parquet for a SQL file path.
func BuildQueryOutputKey(sqlPath string) string {
	base := filepath.Base(sqlPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return path.Join("outputs", "query_results", stem+".parquet")
}

func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, strings.TrimPrefix(key, "/"))
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) || strings.Contains(value, "..") {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
