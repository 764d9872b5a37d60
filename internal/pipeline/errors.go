package pipeline

import (
	"errors"
	"fmt"

	"github.com/lakeshift/lakeshift/internal/query"
)

const (
	StageLoad    = "load"
	StageFetch   = "fetch"
	StageSubmit  = query.StepSubmit
	StageWait    = query.StepWait
	StageResults = query.StepResults
	StageEncode  = "encode"
	StageUpload  = "upload"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sql file %q: %s", e.Path, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StageError names the pipeline step that failed.
type StageError struct {
	Pipeline string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s pipeline failed at %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
