// Package atlaserr defines the error taxonomy shared across Atlas components.
package atlaserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation decisions.
type Kind string

const (
	// KindConfig covers invalid configuration, dimension mismatches, and
	// missing required backends. Always fatal to the operation in progress.
	KindConfig Kind = "config_error"

	// KindBackendUnavailable is transient; callers retry with backoff before
	// escalating to KindBackendFatal.
	KindBackendUnavailable Kind = "backend_unavailable"

	// KindBackendFatal is non-retryable, e.g. authentication failures.
	KindBackendFatal Kind = "backend_fatal"

	// KindValidation covers payload/QNTM schema violations.
	KindValidation Kind = "validation_error"

	// KindIngest wraps a single-file ingestion failure. Aggregated, not raised.
	KindIngest Kind = "ingest_error"

	// KindConsolidation wraps a single-cluster consolidation failure. The
	// consolidation pass continues past it.
	KindConsolidation Kind = "consolidation_error"

	// KindNotFound reports a missing collection or resource where one was
	// required.
	KindNotFound Kind = "not_found"

	// KindCancelled reports cooperative cancellation via context.
	KindCancelled Kind = "cancelled"
)

// Error is a typed, wrappable error carrying an atlaserr.Kind.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "ingest", "qntm.generate"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, atlaserr.New(atlaserr.KindNotFound, "", nil)) style checks
// work, alongside the package-level Is helper below which is the preferred
// call site.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error wrapping err under op with kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error with a formatted message and no wrapped cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err does not
// carry an atlaserr.Kind anywhere in its chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retryable reports whether err should be retried with backoff rather than
// escalated immediately.
func Retryable(err error) bool {
	return Is(err, KindBackendUnavailable)
}

// Fatal reports whether err is a pipeline-wide precondition failure that
// must abort the whole operation rather than being aggregated per-item.
func Fatal(err error) bool {
	return Is(err, KindConfig) || Is(err, KindBackendFatal)
}
