package migrate

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes migration failures.
type ErrorCode string

const (
	// ErrCodeNewerSchema indicates a document written by a newer release.
	ErrCodeNewerSchema ErrorCode = "NEWER_SCHEMA"

	// ErrCodeUnrecognized indicates a payload that matches no known generation.
	ErrCodeUnrecognized ErrorCode = "UNRECOGNIZED"
)

// Error is a migration failure with structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Version is the schema version found in the document, if any.
	Version int

	// Message is a human-readable description.
	Message string
}

// Sentinels for errors.Is. Only the Code is compared.
var (
	ErrNewerSchema  = &Error{Code: ErrCodeNewerSchema}
	ErrUnrecognized = &Error{Code: ErrCodeUnrecognized}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("%s: %s (schema_version=%d)", e.Code, e.Message, e.Version)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsNewerSchema returns true if err is a newer-schema error.
// Uses errors.As to handle wrapped errors.
func IsNewerSchema(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == ErrCodeNewerSchema
	}
	return false
}

// IsUnrecognized returns true if err reports an unrecognized payload.
// Uses errors.As to handle wrapped errors.
func IsUnrecognized(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == ErrCodeUnrecognized
	}
	return false
}

func newerSchema(version int) *Error {
	return &Error{
		Code:    ErrCodeNewerSchema,
		Version: version,
		Message: "document was written by a newer release",
	}
}

func unrecognized(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeUnrecognized,
		Message: fmt.Sprintf(format, args...),
	}
}
