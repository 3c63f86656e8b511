package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error reported to a connection.
type Code string

const (
	CodeUnauthenticated        Code = "unauthenticated"
	CodeMalformedDiscriminator Code = "malformed_discriminator"
	CodeUnknownEntity          Code = "unknown_entity"
	CodeUnknownAction          Code = "unknown_action"
	CodeValidationFailed       Code = "validation_failed"
	CodeNotFound               Code = "not_found"
	CodeBadRequest             Code = "bad_request"
	CodeInternal               Code = "internal"
)

// Error is a recoverable error that is reported privately to the originating
// connection as an "error" event.
type Error struct {
	Code    Code
	Message string
	// Fields holds field-level messages for CodeValidationFailed.
	Fields map[string][]string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case len(e.Fields) == 0:
		return e.Message
	case e.Message == "":
		return FormatFields(e.Fields)
	default:
		return e.Message + ": " + FormatFields(e.Fields)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates an error with a code and message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an error that wraps an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// ValidationError creates a CodeValidationFailed error from field messages.
// Its text is the rendered field map.
func ValidationError(fields map[string][]string) *Error {
	return &Error{Code: CodeValidationFailed, Fields: fields}
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated        = &Error{Code: CodeUnauthenticated}
	ErrMalformedDiscriminator = &Error{Code: CodeMalformedDiscriminator}
	ErrUnknownEntity          = &Error{Code: CodeUnknownEntity}
	ErrUnknownAction          = &Error{Code: CodeUnknownAction}
	ErrValidationFailed       = &Error{Code: CodeValidationFailed}
	ErrNotFound               = &Error{Code: CodeNotFound}
)

// FormatFields renders field errors deterministically, e.g.
// "{'name': ['This field is required.']}".
func FormatFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': [", k)
		for j, msg := range fields[k] {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "'%s'", msg)
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}

// ErrorEvent builds the private "error" event for err.
func ErrorEvent(message string, err error) Event {
	ev := NewEvent(TypeError).With("message", message).With("code", string(CodeOf(err)))
	var pe *Error
	if errors.As(err, &pe) && len(pe.Fields) > 0 {
		ev["fields"] = pe.Fields
	}
	return ev
}
