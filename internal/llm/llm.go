// Package llm provides the JSON- and text-completion backends used by the
// QNTM key generator and the consolidation engine.
package llm

import (
	"context"
	"errors"
)

// JSONBackend completes a prompt and returns raw model text expected to
// contain (possibly fenced) JSON. Callers are responsible for parsing and
// validating the shape of the response.
type JSONBackend interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Available() bool
}

// TextBackend completes a prompt and returns free-form text, used for query
// expansion and consolidation summaries.
type TextBackend interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Available() bool
}

// ErrNotConfigured is returned by backend constructors when required
// credentials are absent.
var ErrNotConfigured = errors.New("llm: backend not configured")

// retryableError marks an error as safe to retry with backoff.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func newRetryable(err error) error {
	return &retryableError{err: err}
}

// isRetryable reports whether err (or anything it wraps) is retryable.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
