package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Failures are isolated to the
// smallest unit that can fail (one file, one record, one data type) and
// accumulate in the invocation result; only a missing target aborts a merge.
type ErrorKind string

const (
	// ErrSourceUnavailable covers a missing or unreadable source file.
	// Non-fatal: the data type yields an empty result for that profile.
	ErrSourceUnavailable ErrorKind = "source_unavailable"
	// ErrMalformedRecord covers a single bad row/node, skipped and logged.
	ErrMalformedRecord ErrorKind = "malformed_record"
	// ErrIntegrityFailure covers classified database corruption.
	ErrIntegrityFailure ErrorKind = "integrity_failure"
	// ErrRecoveryExhausted means both recovery methods failed for one source.
	ErrRecoveryExhausted ErrorKind = "recovery_exhausted"
	// ErrUnsupportedDataType marks a declared extension point, zero-effect.
	ErrUnsupportedDataType ErrorKind = "unsupported_data_type"
	// ErrTargetMissing is the one fatal condition: no resolvable target.
	ErrTargetMissing ErrorKind = "target_missing"
	// ErrAmbiguousConflict marks a manual-strategy conflict with no reviewer
	// decision; it must be surfaced, never auto-resolved.
	ErrAmbiguousConflict ErrorKind = "ambiguous_conflict"
)

// PipelineError is a classified failure carrying enough context for callers
// to render it without re-deriving where it happened.
type PipelineError struct {
	Kind     ErrorKind
	Profile  string
	DataType DataType
	Path     string
	Err      error
}

func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	if e.Profile != "" {
		msg += " profile=" + e.Profile
	}
	if e.DataType != "" {
		msg += " type=" + string(e.DataType)
	}
	if e.Path != "" {
		msg += " path=" + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError builds a classified error; wrapped is optional.
func NewError(kind ErrorKind, wrapped error, format string, args ...interface{}) *PipelineError {
	var err error
	switch {
	case format != "" && wrapped != nil:
		err = fmt.Errorf(format+": %w", append(args, wrapped)...)
	case format != "":
		err = fmt.Errorf(format, args...)
	default:
		err = wrapped
	}
	return &PipelineError{Kind: kind, Err: err}
}

// WithContext attaches profile/type/path context and returns the error.
func (e *PipelineError) WithContext(profile string, dt DataType, path string) *PipelineError {
	e.Profile = profile
	e.DataType = dt
	e.Path = path
	return e
}

// KindOf extracts the ErrorKind from err, or "" if it carries none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
