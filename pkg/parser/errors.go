package parser

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a parse failure.
type Kind string

const (
	KindIO                   Kind = "io"
	KindJSON                 Kind = "json"
	KindInvalidFormat        Kind = "invalid_format"
	KindMissingField         Kind = "missing_field"
	KindInvalidTimestamp     Kind = "invalid_timestamp"
	KindUnknownRole          Kind = "unknown_role"
	KindFileNotFound         Kind = "file_not_found"
	KindDirectoryTraversal   Kind = "directory_traversal"
	KindTaskJoin             Kind = "task_join"
	KindTooManyErrors        Kind = "too_many_errors"
	KindMemoryLimit          Kind = "memory_limit"
	KindPerformanceThreshold Kind = "performance_threshold"
	KindCorruptedData        Kind = "corrupted_data"
)

// Severity ranks how serious a failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Error is a classified parse failure.
type Error struct {
	Kind Kind

	// Path is the source file, empty for in-memory input.
	Path string

	// Line is the 1-based line number, or 0 when the failure is not tied to a line.
	Line int

	// Value is the offending text: the unknown role, the bad timestamp or the
	// missing field name.
	Value string

	// Count is the number of consecutive failures for KindTooManyErrors.
	Count int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	switch e.Kind {
	case KindUnknownRole:
		msg = fmt.Sprintf("unknown role %q", e.Value)
	case KindInvalidTimestamp:
		msg = fmt.Sprintf("invalid timestamp %q", e.Value)
	case KindMissingField:
		msg = fmt.Sprintf("missing required field %q", e.Value)
	case KindTooManyErrors:
		msg = fmt.Sprintf("too many consecutive errors: %d", e.Count)
	case KindJSON:
		msg = "invalid JSON"
	case KindMemoryLimit:
		msg = fmt.Sprintf("file exceeds memory limit: %s", e.Value)
	}

	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to see the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure can be absorbed by the recovery
// policy or a batch without stopping work.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindJSON, KindInvalidFormat, KindMissingField, KindInvalidTimestamp,
		KindUnknownRole, KindPerformanceThreshold:
		return true
	}
	return false
}

// Severity maps the kind to a severity level.
func (e *Error) Severity() Severity {
	switch e.Kind {
	case KindIO, KindFileNotFound, KindDirectoryTraversal, KindTaskJoin, KindCorruptedData:
		return SeverityCritical
	case KindJSON, KindInvalidFormat, KindTooManyErrors:
		return SeverityError
	case KindMissingField, KindInvalidTimestamp, KindUnknownRole:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// withPath returns err with its path set when it is a *Error without one.
func withPath(err error, path string) error {
	var pe *Error
	if errors.As(err, &pe) && pe.Path == "" {
		pe.Path = path
	}
	return err
}

// ErrorContext is an immutable record of one failed file in a batch.
type ErrorContext struct {
	FilePath string `json:"file_path"`

	// Line is 0 when the failure is not tied to a line.
	Line int `json:"line,omitempty"`

	Kind        Kind      `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

// NewErrorContext classifies err for path. Errors that are not a *Error are
// treated as critical IO failures.
func NewErrorContext(path string, err error) ErrorContext {
	ec := ErrorContext{
		FilePath:  path,
		Kind:      KindIO,
		Timestamp: time.Now().UTC(),
		Severity:  SeverityCritical,
		Message:   err.Error(),
	}

	var pe *Error
	if errors.As(err, &pe) {
		ec.Line = pe.Line
		ec.Kind = pe.Kind
		ec.Severity = pe.Severity()
		ec.Recoverable = pe.Recoverable()
	}
	return ec
}
