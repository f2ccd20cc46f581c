package services

import (
	"errors"
	"fmt"
)

// Failure kinds. Match with errors.Is.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrExtractionFailure  = errors.New("extraction failure")
	ErrEmbeddingFailure   = errors.New("embedding failure")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrIngestionInProgress means another worker holds the document's lease
	ErrIngestionInProgress = errors.New("ingestion already in progress")
)

// Failure is a classified error raised by an operation
type Failure struct {
	Kind error
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %v", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

func fail(kind error, op string, err error) error {
	return &Failure{Kind: kind, Op: op, Err: err}
}

// upstream classifies an external call failure, including timeouts
func upstream(op string, err error) error {
	return fail(ErrUpstreamFailure, op, err)
}

// Retryable reports whether redelivering the ingestion trigger may succeed.
// Extraction failures and bad input are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrExtractionFailure):
		return false
	default:
		return true
	}
}
