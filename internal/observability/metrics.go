package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PipelineExport = "export"
	PipelineQuery  = "query"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeshift_pipeline_runs_total",
			Help: "Total number of pipeline runs by pipeline and status.",
		},
		[]string{"pipeline", "status"},
	)
	pipelineDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakeshift_pipeline_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900, 1800},
		},
		[]string{"pipeline"},
	)
	rowsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeshift_rows_written_total",
			Help: "Total number of rows written to columnar artifacts.",
		},
		[]string{"pipeline"},
	)
	bytesUploadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeshift_bytes_uploaded_total",
			Help: "Total number of artifact bytes uploaded to object storage.",
		},
		[]string{"pipeline"},
	)
	queryPollAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeshift_query_poll_attempts_total",
			Help: "Total number of query status polls.",
		},
	)
	queryTerminalStatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeshift_query_terminal_states_total",
			Help: "Total number of query jobs observed in each terminal state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineDurationSeconds,
		rowsWrittenTotal,
		bytesUploadedTotal,
		queryPollAttemptsTotal,
		queryTerminalStatesTotal,
	)
}

func ObservePipelineRun(pipeline string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	pipelineRunsTotal.WithLabelValues(pipeline, status).Inc()
	pipelineDurationSeconds.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

func ObserveArtifact(pipeline string, rows int64, bytes int) {
	if rows > 0 {
		rowsWrittenTotal.WithLabelValues(pipeline).Add(float64(rows))
	}
	if bytes > 0 {
		bytesUploadedTotal.WithLabelValues(pipeline).Add(float64(bytes))
	}
}

func IncrementQueryPoll() {
	queryPollAttemptsTotal.Inc()
}

func ObserveQueryTerminalState(state string) {
	queryTerminalStatesTotal.WithLabelValues(state).Inc()
}

// WriteTextfile dumps every registered metric in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
