package utils

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by billing operations. Match with errors.Is.
var (
	ErrResourceNotFound       = errors.New("resource not found")
	ErrValidation             = errors.New("validation error")
	ErrBusinessRule           = errors.New("business rule violation")
	ErrAuthenticationRequired = errors.New("authentication required")
)

// AppError carries a caller-facing message together with its kind.
type AppError struct {
	Kind    error
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Kind
}

func newAppError(kind error, format string, args ...any) error {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newAppError(ErrResourceNotFound, format, args...)
}

func Validation(format string, args ...any) error {
	return newAppError(ErrValidation, format, args...)
}

func BusinessRule(format string, args ...any) error {
	return newAppError(ErrBusinessRule, format, args...)
}

func AuthRequired(format string, args ...any) error {
	return newAppError(ErrAuthenticationRequired, format, args...)
}

// ErrorKind returns the kind of err, or nil for errors outside the taxonomy.
func ErrorKind(err error) error {
	for _, kind := range []error{ErrResourceNotFound, ErrValidation, ErrBusinessRule, ErrAuthenticationRequired} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
