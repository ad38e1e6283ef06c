// Package syncerr defines the typed failures produced by the synchronization
// pipeline. Every decode path returns one of these instead of panicking.
package syncerr

import (
	"errors"
	"fmt"
)

// Code classifies a synchronization failure.
type Code string

const (
	// CodeCorruptData marks malformed snapshot or delta bytes.
	CodeCorruptData Code = "corrupt_data"
	// CodeDeltaMismatch marks a delta applied to a snapshot it was not computed from.
	CodeDeltaMismatch Code = "delta_mismatch"
	// CodeDecompression marks a truncated or invalid compressed payload.
	CodeDecompression Code = "decompression_error"
	// CodeFrame marks an inconsistent frame header.
	CodeFrame Code = "frame_error"
	// CodeSessionDesync marks a session that exceeded its ack-miss threshold.
	CodeSessionDesync Code = "session_desync"
)

// Error is a synchronization failure with a machine-readable code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrCorruptData   = &Error{Code: CodeCorruptData, Message: "corrupt data"}
	ErrDeltaMismatch = &Error{Code: CodeDeltaMismatch, Message: "delta mismatch"}
	ErrDecompression = &Error{Code: CodeDecompression, Message: "decompression error"}
	ErrFrame         = &Error{Code: CodeFrame, Message: "frame error"}
	ErrSessionDesync = &Error{Code: CodeSessionDesync, Message: "session desync"}
)

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first *Error in the chain, or "" when none.
func CodeOf(err error) Code {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
