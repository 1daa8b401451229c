// Package errors provides the coded error type shared by every layer of the
// review service. Transports translate codes into HTTP or gRPC statuses.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for callers and transports.
type Code string

const (
	ErrCodeValidation        Code = "VALIDATION_ERROR"
	ErrCodeRuleConfiguration Code = "RULE_CONFIGURATION_ERROR"
	ErrCodeExportEquivalence Code = "EXPORT_EQUIVALENCE_ERROR"
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeConflict          Code = "CONFLICT"
	ErrCodeUnauthorized      Code = "UNAUTHORIZED"
	ErrCodeInternal          Code = "INTERNAL_ERROR"
)

// Error is a coded error with an optional field and cause.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// Validation reports malformed payroll input for one employee or record pairing.
func Validation(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Field: field}
}

// RuleConfiguration reports a rule set that cannot be loaded.
func RuleConfiguration(ruleID, message string) *Error {
	e := &Error{Code: ErrCodeRuleConfiguration, Message: message}
	if ruleID != "" {
		e.Field = "rule " + ruleID
	}
	return e
}

// ExportEquivalence reports an exported graph that disagrees with direct evaluation.
func ExportEquivalence(message string) *Error {
	return &Error{Code: ErrCodeExportEquivalence, Message: message}
}

// CodeOf returns the code of the first *Error in the chain, or ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether the first *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As and Is re-export the standard helpers so callers need a single import.
func As(err error, target any) bool { return stderrors.As(err, target) }
func Is(err, target error) bool     { return stderrors.Is(err, target) }
