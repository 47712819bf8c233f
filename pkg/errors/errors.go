// Package errors provides coded errors shared across the submission engine.
//
// Codes classify failures the way the retry scheduler and the HTTP layer need
// them classified: validation and business-rule failures are terminal and
// local, transient failures are queueable, authentication failures require
// operator action before any retry.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	CodeValidation     Code = "validation"
	CodeBusinessRule   Code = "business_rule"
	CodeAuthentication Code = "authentication"
	CodeTransient      Code = "transient"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal"
)

// Error is a coded error. Use New or Wrap to construct.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping nil returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain.
// Unknown errors report CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the failure class is worth retrying.
// Only transient/system failures qualify; validation and business-rule
// rejections would produce an identical rejection on replay.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeTransient
}
