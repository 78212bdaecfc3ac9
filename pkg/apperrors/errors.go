package apperrors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Cause   error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// WithMeta attaches machine-readable metadata (rate-limit ceilings,
// reset times) that the boundary layer forwards to the client.
func WithMeta(code Code, message string, meta interface{}) error {
	return &AppError{Code: code, Message: message, Meta: meta}
}

// CodeOf returns the application error code of err, or CodeUnknown
// when err does not carry one.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Constructors for the common cases.

func InvalidIdentifier(msg string) error {
	return New(CodeInvalidIdentifier, msg)
}

func NotMatched(msg string) error {
	return New(CodeNotMatched, msg)
}

func Blocked(msg string) error {
	return New(CodeBlocked, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Storage(msg string, cause error) error {
	return Wrap(CodeStorage, msg, cause)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}
