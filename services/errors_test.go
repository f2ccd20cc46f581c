package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureMatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := fail(ErrPersistenceFailure, "commit chunks", cause)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUpstreamFailure)
	assert.Equal(t, "commit chunks: persistence failure: boom", err.Error())

	var f *Failure
	assert.True(t, errors.As(err, &f))
	assert.Equal(t, "commit chunks", f.Op)
}

func TestFailureWithoutCause(t *testing.T) {
	err := fail(ErrIngestionInProgress, "acquire ingestion lease", nil)
	assert.ErrorIs(t, err, ErrIngestionInProgress)
	assert.Equal(t, "acquire ingestion lease: ingestion already in progress", err.Error())
}

func TestTimeoutIsUpstream(t *testing.T) {
	err := upstream("vector search", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(fail(ErrExtractionFailure, "extract", errors.New("x"))))
	assert.False(t, Retryable(fail(ErrInvalidRequest, "ingest", nil)))
	assert.True(t, Retryable(fail(ErrPersistenceFailure, "commit", errors.New("x"))))
	assert.True(t, Retryable(fail(ErrEmbeddingFailure, "embed", errors.New("x"))))
	assert.True(t, Retryable(errors.New("unclassified")))
}
