// Package errors provides structured error handling for DataGrade.
// It implements errors with codes, context, and stack traces so that the
// engine can route failures: row-level errors become report findings,
// analyzer-level errors demote a single analyzer, and only source errors
// abort a run.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Source errors (1xx)
	CodeFileNotFound   Code = "E101"
	CodeFilePermission Code = "E102"
	CodeInvalidFormat  Code = "E103"
	CodeMissingColumn  Code = "E104"
	CodeFatalSource    Code = "E105"

	// Row / data errors (2xx)
	CodeDataFormat       Code = "E201"
	CodeInvalidTimestamp Code = "E202"
	CodeEncodingError    Code = "E203"

	// Analyzer errors (3xx)
	CodeAnalyzerFailure       Code = "E301"
	CodeCapabilityUnavailable Code = "E302"
	CodeAnalyzerTimeout       Code = "E303"

	// Estimator errors (4xx)
	CodeResourceExhausted Code = "E401"

	// System errors (5xx)
	CodeContextCanceled Code = "E501"
	CodeDeadline        Code = "E502"
	CodePanic           Code = "E503"
	CodeConfigInvalid   Code = "E504"

	// External backends (6xx)
	CodeCacheUnavailable Code = "E601"
	CodeQueryFailed      Code = "E602"
	CodeExportFailed     Code = "E603"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all DataGrade errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *Error {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// DataFormat creates a row-level format error. These are recovered locally
// and surfaced as findings, never as run failures.
func DataFormat(row int64, err error) *Error {
	return Wrap(err, CodeDataFormat, "row cannot be parsed").
		WithContext("row", row)
}

// AnalyzerFailure creates an analyzer execution error.
func AnalyzerFailure(analyzer string, err error) *Error {
	return Wrap(err, CodeAnalyzerFailure, "analyzer failed").
		WithContext("analyzer", analyzer)
}

// CapabilityUnavailable reports a missing runtime prerequisite, such as an
// unloaded model. Analyzers that need it are skipped before any row runs.
func CapabilityUnavailable(analyzer, capability string) *Error {
	return New(CodeCapabilityUnavailable, "required capability unavailable").
		WithContext("analyzer", analyzer).
		WithContext("capability", capability)
}

// FatalSource reports that the row source became unreadable mid-run.
func FatalSource(err error) *Error {
	return Wrap(err, CodeFatalSource, "row source unreadable")
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFatal returns true if the error must abort the run. Everything else is
// recovered locally and reported as a finding.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeFatalSource, CodePanic:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
