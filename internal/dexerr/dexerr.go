// Package dexerr defines the error taxonomy shared by the task service,
// storage engines, and GitHub sync. Every error kind maps to a stable
// machine-readable identifier and a process exit code.
package dexerr

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error classification.
type Kind string

// User-input errors (exit code 1).
const (
	ValidationFailed   Kind = "validation_failed"
	NotFound           Kind = "not_found"
	AlreadyExists      Kind = "already_exists"
	ReferenceMissing   Kind = "reference_missing"
	DepthExceeded      Kind = "depth_exceeded"
	CycleWouldForm     Kind = "cycle_would_form"
	PreconditionFailed Kind = "precondition_failed"
	AlreadyStarted     Kind = "already_started"
)

// Storage errors (exit code 2).
const (
	DataCorruption Kind = "data_corruption"
	StorageIO      Kind = "storage_io"
)

// Remote errors (exit code 3).
const (
	GitHubAuth      Kind = "github_auth"
	GitHubTransport Kind = "github_transport"
	GitHubRateLimit Kind = "github_rate_limit"
)

// Internal marks invariant violations discovered mid-mutation: programming
// errors, never user errors.
const Internal Kind = "internal"

// Error is a classified error with an optional user-facing hint.
type Error struct {
	Kind    Kind
	Message string
	Hint    string // e.g. "Run 'dex list --all' to see all tasks"
	Err     error  // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match by kind: errors.Is(err, &Error{Kind: NotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithHint attaches a user-facing hint and returns the error.
func (e *Error) WithHint(format string, args ...interface{}) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// KindOf extracts the kind from an error chain, or Internal for
// unclassified errors. Returns empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HintOf extracts the hint from an error chain, if any.
func HintOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Hint
	}
	return ""
}

// ExitCode maps an error to the documented process exit codes:
// 0 success, 1 user error, 2 storage failure, 3 remote sync failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case DataCorruption, StorageIO:
		return 2
	case GitHubAuth, GitHubTransport, GitHubRateLimit:
		return 3
	default:
		return 1
	}
}
