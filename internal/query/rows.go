package query

import (
	"fmt"

	"github.com/lakeshift/lakeshift/internal/table"
)

// ParseRawRows turns raw engine rows into a String table. The first row is
// the header echoed by the engine and is dropped. Cells are matched to labels
// by position; missing cells become null and surplus cells are ignored.
// When labels is empty the header row supplies them.
func ParseRawRows(labels []string, rows [][]*string) (table.Table, error) {
	var header []*string
	if len(rows) > 0 {
		header = rows[0]
		rows = rows[1:]
	}
	if len(labels) == 0 {
		labels = make([]string, len(header))
		for i, cell := range header {
			if cell != nil {
				labels[i] = *cell
			}
		}
	}

	out, err := table.NewStrings(uniqueLabels(labels))
	if err != nil {
		return table.Table{}, fmt.Errorf("build result table: %w", err)
	}
	values := make([]any, len(labels))
	for _, row := range rows {
		for i := range values {
			values[i] = nil
			if i < len(row) && row[i] != nil {
				values[i] = *row[i]
			}
		}
		if err := out.AppendRow(values); err != nil {
			return table.Table{}, err
		}
	}
	return out, nil
}

// uniqueLabels names blank labels _col<i> and suffixes repeats with _<n>.
func uniqueLabels(labels []string) []string {
	out := make([]string, len(labels))
	taken := make(map[string]bool, len(labels))
	for i, label := range labels {
		if label == "" {
			label = fmt.Sprintf("_col%d", i)
		}
		name := label
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", label, n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
