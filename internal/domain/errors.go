package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeSplit      ErrorType = "split"
	ErrorTypeInference  ErrorType = "inference"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeCanceled   ErrorType = "canceled"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func DecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

func SplitError(message string, err error) *DomainError {
	return NewError(ErrorTypeSplit, message, err)
}

func InferenceError(message string, err error) *DomainError {
	return NewError(ErrorTypeInference, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func CanceledError(message string, err error) *DomainError {
	return NewError(ErrorTypeCanceled, message, err)
}

// IsType reports whether any error in err's chain is a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// Reason renders err as the human-readable message chain reported to callers.
// Domain error type tags are omitted: "page 2: request failed: HTTP 500".
// Context added by fmt.Errorf wrappers around a domain error is kept.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := err.(*DomainError); ok {
		if de.Err == nil {
			return de.Message
		}
		return de.Message + ": " + Reason(de.Err)
	}

	inner := errors.Unwrap(err)
	if inner == nil {
		return err.Error()
	}
	outer, innerText := err.Error(), inner.Error()
	if !strings.HasSuffix(outer, innerText) {
		return outer
	}
	return strings.TrimSuffix(outer, innerText) + Reason(inner)
}
