// Package apperror provides structured errors for the list data-access layer.
// All failures surfaced to callers use AppError so that the failing list and
// operation travel with the error.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Schema / shape errors: programming or configuration mistakes, never retried.
	CodeSchemaFetch     = "SCHEMA_FETCH_ERROR"
	CodeFieldNotFound   = "FIELD_NOT_FOUND"
	CodeMissingTypeHint = "MISSING_TYPE_HINT"
	CodeUnknownField    = "UNKNOWN_FIELD"

	// Record errors
	CodeLoad                = "LOAD_ERROR"
	CodeSubmit              = "SUBMIT_ERROR"
	CodeDelete              = "DELETE_ERROR"
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeData                = "DATA_ERROR"

	// Registry / lifecycle errors
	CodeControllerNotFound = "CONTROLLER_NOT_FOUND"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"

	CodeInternal = "INTERNAL_ERROR"
)

// AppError is the standard error type of the module.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (list, operation, fields, ...)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	prefix := e.Code
	if list, ok := e.Details["list"]; ok {
		prefix = fmt.Sprintf("%s [%v]", prefix, list)
	}
	if op, ok := e.Details["op"]; ok {
		prefix = fmt.Sprintf("%s %v", prefix, op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Clone returns a copy with its own details map.
func (e *AppError) Clone() *AppError {
	c := *e
	c.Details = make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		c.Details[k] = v
	}
	return &c
}

// In annotates the error with the list identity and operation.
func (e *AppError) In(list, op string) *AppError {
	return e.WithDetail("list", list).WithDetail("op", op)
}

// --- Factory functions ---

// NewSchemaFetch is returned when list metadata or the field catalog cannot be fetched.
func NewSchemaFetch(what string, cause error) *AppError {
	return &AppError{
		Code:    CodeSchemaFetch,
		Message: fmt.Sprintf("fetching %s failed", what),
		Details: map[string]any{"what": what},
		Err:     cause,
	}
}

// NewFieldNotFound is returned when an entity property maps to a field the list does not have.
func NewFieldNotFound(entity, property, field string) *AppError {
	return &AppError{
		Code:    CodeFieldNotFound,
		Message: fmt.Sprintf("%s.%s => %s not found in fields", entity, property, field),
		Details: map[string]any{"entity": entity, "property": property, "field": field},
	}
}

// NewMissingTypeHint is returned for a lookup property without a nested entity type.
func NewMissingTypeHint(entity, property, field string) *AppError {
	return &AppError{
		Code:    CodeMissingTypeHint,
		Message: fmt.Sprintf("%s.%s => %s is a lookup without nested type", entity, property, field),
		Details: map[string]any{"entity": entity, "property": property, "field": field},
	}
}

// NewUnknownField is returned when submitting a property the list catalog does not know.
func NewUnknownField(field string) *AppError {
	return &AppError{
		Code:    CodeUnknownField,
		Message: fmt.Sprintf("'%s' not in field catalog", field),
		Details: map[string]any{"field": field},
	}
}

// NewLoad wraps a failed record fetch.
func NewLoad(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeLoad,
		Message: message,
		Err:     cause,
	}
}

// NewSubmit wraps a failed create or update.
func NewSubmit(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeSubmit,
		Message: message,
		Err:     cause,
	}
}

// NewDelete is returned when an entity cannot be deleted.
func NewDelete(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeDelete,
		Message: message,
		Err:     cause,
	}
}

// NewUnresolvedReference is returned when submitting a reference to an entity without remote id.
func NewUnresolvedReference(field string) *AppError {
	return &AppError{
		Code:    CodeUnresolvedReference,
		Message: fmt.Sprintf("reference in %s has no id", field),
		Details: map[string]any{"field": field},
	}
}

// NewData is returned for malformed wire data.
func NewData(message string) *AppError {
	return &AppError{
		Code:    CodeData,
		Message: message,
	}
}

// NewControllerNotFound is returned by registry lookups for unknown lists.
func NewControllerNotFound(identity string, known int) *AppError {
	return &AppError{
		Code:    CodeControllerNotFound,
		Message: fmt.Sprintf("no controller for %s, create it first", identity),
		Details: map[string]any{"identity": identity, "known": known},
	}
}

// NewAlreadyInitialized is the double-initialisation guard error.
func NewAlreadyInitialized(list string) *AppError {
	return &AppError{
		Code:    CodeAlreadyInitialized,
		Message: "initialise already called",
		Details: map[string]any{"list": list},
	}
}

// NewInternal wraps unexpected failures.
func NewInternal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether the outermost AppError in the chain carries code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
