// Package errs defines the closed error taxonomy the control surface
// maps onto HTTP status codes. It keeps the teacher's
// fmt.Errorf("...: %w", err) wrapping idiom but adds the kind enum the
// HTTP layer needs to pick a status code without string-matching errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error categories.
type Kind string

const (
	// RequestMalformed is a missing-required-field validation failure; HTTP 422.
	RequestMalformed Kind = "request_malformed"
	// ResourceConflict is a duplicate loader or unknown loader_id; HTTP 409.
	ResourceConflict Kind = "resource_conflict"
	// AdapterTransient is a backend RPC failure during steady state; logged, iteration advances.
	AdapterTransient Kind = "adapter_transient"
	// AdapterFatal is an auth/connection/container-missing failure; the loader transitions to failed.
	AdapterFatal Kind = "adapter_fatal"
	// GeneratorError is a synthesis failure; the record is dropped from the batch.
	GeneratorError Kind = "generator_error"
	// InvariantViolation should never fire; surfaces as HTTP 500.
	InvariantViolation Kind = "invariant_violation"
)

// LoaderError wraps an underlying error with a Kind for status-code
// mapping at the HTTP layer, and supports errors.Is/As through Unwrap.
type LoaderError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *LoaderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// New builds a LoaderError of the given kind, wrapping err.
func New(kind Kind, op string, err error) *LoaderError {
	return &LoaderError{Kind: kind, Op: op, Err: err}
}

// Is reports whether target is a *LoaderError with the same Kind, so
// callers can do errors.Is(err, errs.New(errs.ResourceConflict, "", nil))
// — but the common case is KindOf below.
func (e *LoaderError) Is(target error) bool {
	var other *LoaderError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind from err if it is (or wraps) a *LoaderError,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var le *LoaderError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}
