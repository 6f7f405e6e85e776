// File: api/errors.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types and error handling utilities for hioload-wl.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOverflow          = errors.New("buffer overflow")
	ErrRetry             = errors.New("pending events must be dispatched first")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrClosed            = errors.New("connection is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeOverflow
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeInvalidArgument:   ErrInvalidArgument,
	ErrCodeOverflow:          ErrOverflow,
	ErrCodeResourceExhausted: ErrResourceExhausted,
	ErrCodeNotSupported:      ErrNotSupported,
	ErrCodeAlreadyExists:     ErrAlreadyExists,
	ErrCodeNotFound:          ErrNotFound,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap maps the code onto its sentinel so errors.Is works against
// the package-level errors.
func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}

// Loggable returns the context as structured logging fields.
func (e *Error) Loggable() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		fields[k] = v
	}
	fields["error"] = e.Message
	return fields
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
