package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const sqlFileExt = ".sql"

// ValidateSQLFile checks that path names an existing regular file ending in
// .sql and returns its absolute path. It never reads the file.
func ValidateSQLFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &ValidationError{Path: path, Reason: "path is required"}
	}
	if filepath.Ext(path) != sqlFileExt {
		return "", &ValidationError{Path: path, Reason: "file must have a .sql extension"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &ValidationError{Path: path, Reason: "file does not exist"}
		}
		return "", fmt.Errorf("stat sql file %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", &ValidationError{Path: path, Reason: "not a regular file"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sql file %q: %w", path, err)
	}
	return abs, nil
}

// LoadSQL validates and reads a query file. Blank files are rejected.
func LoadSQL(path string) (string, error) {
	abs, err := ValidateSQLFile(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read sql file %q: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", &ValidationError{Path: path, Reason: "file is not valid UTF-8"}
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return "", &ValidationError{Path: path, Reason: "file is empty"}
	}
	return text, nil
}
