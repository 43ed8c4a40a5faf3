// Package errs defines the single tagged error type shared across Podwise's
// ingestion and retrieval paths.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a PodwiseError for dispatch at call sites (retry vs.
// skip vs. abort vs. fallback).
type Kind string

const (
	// ConfigError covers bad YAML or a missing tag file. Fatal at startup.
	ConfigError Kind = "config"
	// ResourceError covers an unreachable embedding, vector, or metadata
	// store. Retried with backoff at call sites.
	ResourceError Kind = "resource"
	// DataError covers a malformed transcript or oversize/missing field.
	DataError Kind = "data"
	// TimeoutError covers a per-call or per-request deadline.
	TimeoutError Kind = "timeout"
	// QualityError covers an L6 answer that fails quality control.
	QualityError Kind = "quality"
	// InvariantError covers progress-journal corruption or count
	// divergence. Requires operator intervention.
	InvariantError Kind = "invariant"
)

// PodwiseError is the one error type every component returns. It carries
// enough identity to route the failure (retry, skip, abort) and enough
// context to write a useful journal record.
type PodwiseError struct {
	Kind         Kind
	Stage        string
	CollectionID string
	DocumentID   string
	Message      string
	Cause        error
}

func (e *PodwiseError) Error() string {
	if e.CollectionID != "" || e.DocumentID != "" {
		return fmt.Sprintf("%s[%s]: %s (collection=%s document=%s)", e.Kind, e.Stage, e.Message, e.CollectionID, e.DocumentID)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
}

func (e *PodwiseError) Unwrap() error { return e.Cause }

// New builds a PodwiseError without a wrapped cause.
func New(kind Kind, stage, message string) *PodwiseError {
	return &PodwiseError{Kind: kind, Stage: stage, Message: message}
}

// Wrap builds a PodwiseError that wraps an underlying cause.
func Wrap(kind Kind, stage string, cause error, message string) *PodwiseError {
	return &PodwiseError{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// WithCollection sets the collection identifier and returns the receiver
// for chaining.
func (e *PodwiseError) WithCollection(collectionID string) *PodwiseError {
	e.CollectionID = collectionID
	return e
}

// WithDocument sets the document identifier and returns the receiver for
// chaining.
func (e *PodwiseError) WithDocument(documentID string) *PodwiseError {
	e.DocumentID = documentID
	return e
}

// Is reports whether err is a PodwiseError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *PodwiseError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsRetryable reports whether the call site should retry rather than
// skip or abort. Only ResourceError and TimeoutError are retryable; the
// caller still enforces its own attempt cap.
func IsRetryable(err error) bool {
	var pe *PodwiseError
	if errors.As(err, &pe) {
		return pe.Kind == ResourceError || pe.Kind == TimeoutError
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a PodwiseError.
func KindOf(err error) Kind {
	var pe *PodwiseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
