// Package exception provides the error types shared by the bikeshare pipeline.
//
// PipelineError tags an error with the module it came from and the stack at
// creation time. DataFormatError describes a malformed input record and is
// the only error a dataset load raises for bad data.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// PipelineError is an error raised by one of the pipeline modules.
type PipelineError struct {
	// Module indicates where the error occurred (e.g., "reader", "dataset", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// StackTrace is the stack at the time of the error (for debugging).
	StackTrace string
}

// NewPipelineError creates a new PipelineError capturing the current stack.
func NewPipelineError(module, message string, originalErr error) *PipelineError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  string(buf[:n]),
	}
}

// NewPipelineErrorf creates a PipelineError with a formatted message.
// When the last argument is an error it is wrapped and not consumed by the format.
func NewPipelineErrorf(module, format string, a ...interface{}) *PipelineError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok && strings.Count(format, "%")-2*strings.Count(format, "%%") < len(a) {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewPipelineError(module, fmt.Sprintf(format, a...), originalErr)
}

// Error returns "[module] message: original".
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped original error.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// DataFormatError reports a malformed input record, an unparseable value or
// a missing required column. Line is the 1-based line in the source file;
// zero means the problem is not tied to a line (e.g. the header).
type DataFormatError struct {
	Source string
	Line   int
	Column string
	Value  string
	Reason string
	Err    error
}

// NewDataFormatError creates a DataFormatError.
func NewDataFormatError(source string, line int, column, value, reason string, err error) *DataFormatError {
	return &DataFormatError{
		Source: source,
		Line:   line,
		Column: column,
		Value:  value,
		Reason: reason,
		Err:    err,
	}
}

func (e *DataFormatError) Error() string {
	var b strings.Builder
	b.WriteString("data format error")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}

// IsDataFormatError reports whether err (or anything it wraps) is a DataFormatError.
func IsDataFormatError(err error) bool {
	var dfe *DataFormatError
	return errors.As(err, &dfe)
}

// AsDataFormatError extracts the first DataFormatError in err's chain.
func AsDataFormatError(err error) (*DataFormatError, bool) {
	var dfe *DataFormatError
	if errors.As(err, &dfe) {
		return dfe, true
	}
	return nil, false
}

// ExtractErrorMessage returns the innermost message of a PipelineError chain,
// falling back to err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.OriginalErr != nil {
			return fmt.Sprintf("%s: %s", pe.Message, ExtractErrorMessage(pe.OriginalErr))
		}
		return pe.Message
	}
	return err.Error()
}
