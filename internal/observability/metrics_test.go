package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lakeshift/lakeshift/internal/config"
)

func TestWriteTextfileContainsPipelineMetrics(t *testing.T) {
	ObservePipelineRun(PipelineExport, nil, 2*time.Second)
	ObservePipelineRun(PipelineQuery, errors.New("boom"), time.Second)
	ObserveArtifact(PipelineExport, 10, 2048)
	IncrementQueryPoll()
	ObserveQueryTerminalState("SUCCEEDED")

	path := filepath.Join(t.TempDir(), "lakeshift.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`lakeshift_pipeline_runs_total{pipeline="export",status="success"}`,
		`lakeshift_pipeline_runs_total{pipeline="query",status="failure"}`,
		`lakeshift_rows_written_total{pipeline="export"}`,
		`lakeshift_query_poll_attempts_total`,
		`lakeshift_query_terminal_states_total{state="SUCCEEDED"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("textfile missing %s", want)
		}
	}
}

func TestWriteTextfileNoopWithoutPath(t *testing.T) {
	if err := WriteTextfile(""); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
}

func TestNewLoggerTagsServiceAndProfile(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "lakeshift"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	NewLogger(cfg, &buf).Info("hello")
	out := buf.String()
	if !strings.Contains(out, `"service":"lakeshift"`) || !strings.Contains(out, `"profile":"test"`) {
		t.Fatalf("log line = %s", out)
	}
}
