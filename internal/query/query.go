// Package query defines the asynchronous query engine contract and the
// submit, poll and fetch protocol shared by every engine.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lakeshift/lakeshift/internal/table"
)

type ExecutionID string

type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further state transitions will happen.
// Unknown states are treated as still in flight.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

type Request struct {
	SQL      string
	Database string
}

type Status struct {
	State  State
	Reason string
}

// ResultSet is one page of results. Every column is a String column.
type ResultSet struct {
	Table     table.Table
	Truncated bool
}

type Engine interface {
	Start(ctx context.Context, request Request) (ExecutionID, error)
	Status(ctx context.Context, id ExecutionID) (Status, error)
	Results(ctx context.Context, id ExecutionID, maxRows int) (ResultSet, error)
}

var (
	ErrQueryFailed    = errors.New("query failed")
	ErrQueryCancelled = errors.New("query cancelled")
	ErrPollTimeout    = errors.New("query poll timed out")
)

// JobError reports a query that reached FAILED or CANCELLED.
type JobError struct {
	ExecutionID ExecutionID
	State       State
	Reason      string
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("query %s %s", e.ExecutionID, strings.ToLower(string(e.State)))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *JobError) Is(target error) bool {
	switch target {
	case ErrQueryFailed:
		return e.State == StateFailed
	case ErrQueryCancelled:
		return e.State == StateCancelled
	default:
		return false
	}
}

const (
	StepSubmit  = "submit"
	StepWait    = "wait"
	StepResults = "results"
)

// StepError records which step of Run failed.
type StepError struct {
	Step        string
	ExecutionID ExecutionID
	Err         error
}

func (e *StepError) Error() string {
	if e.ExecutionID == "" {
		return fmt.Sprintf("%s query: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s query %s: %v", e.Step, e.ExecutionID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Run submits request, waits for a terminal state and fetches up to maxRows
// result rows. Results are only requested after SUCCEEDED.
func Run(ctx context.Context, engine Engine, request Request, maxRows int, opts WaitOptions) (ExecutionID, ResultSet, error) {
	if engine == nil {
		return "", ResultSet{}, &StepError{Step: StepSubmit, Err: fmt.Errorf("query engine is required")}
	}
	if strings.TrimSpace(request.SQL) == "" {
		return "", ResultSet{}, &StepError{Step: StepSubmit, Err: fmt.Errorf("sql is required")}
	}

	id, err := engine.Start(ctx, request)
	if err != nil {
		return "", ResultSet{}, &StepError{Step: StepSubmit, Err: err}
	}
	if err := Wait(ctx, engine, id, opts); err != nil {
		return id, ResultSet{}, &StepError{Step: StepWait, ExecutionID: id, Err: err}
	}
	results, err := engine.Results(ctx, id, maxRows)
	if err != nil {
		return id, ResultSet{}, &StepError{Step: StepResults, ExecutionID: id, Err: err}
	}
	return id, results, nil
}
