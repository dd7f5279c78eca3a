package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"

	// Artifact cannot be decomposed into units. Fatal for that artifact only.
	ErrorTypeDecode ErrorType = "decode"

	// Recognition failures. Transport, rate limit and empty results are retried;
	// a rejected request is not.
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeEmptyResult ErrorType = "empty_result"
	ErrorTypeRequest     ErrorType = "request"

	// Integrity errors. Never retried.
	ErrorTypeEmptyWrite         ErrorType = "empty_write"
	ErrorTypeIncompleteArtifact ErrorType = "incomplete_artifact"
	ErrorTypeCacheConflict      ErrorType = "cache_conflict"
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

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func DecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, err)
}

func TransportError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func RateLimitError(message string, err error) *DomainError {
	return NewError(ErrorTypeRateLimit, message, err)
}

func EmptyResultError(message string) *DomainError {
	return NewError(ErrorTypeEmptyResult, message, nil)
}

func RequestError(message string, err error) *DomainError {
	return NewError(ErrorTypeRequest, message, err)
}

func EmptyWriteError(key UnitKey) *DomainError {
	return NewError(ErrorTypeEmptyWrite, fmt.Sprintf("refusing to cache empty text for %s", key), nil)
}

func CacheConflictError(key UnitKey) *DomainError {
	return NewError(ErrorTypeCacheConflict, fmt.Sprintf("cache entry already exists for %s", key), nil)
}

// IncompleteArtifactError reports the units that had no cache entry at assembly time.
func IncompleteArtifactError(artifactID string, missing []string) *DomainError {
	return NewError(ErrorTypeIncompleteArtifact,
		fmt.Sprintf("artifact %s is missing %d cached unit(s): %v", artifactID, len(missing), missing), nil)
}

// TypeOf returns the type of the first DomainError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable reports whether a recognition error is worth another attempt.
// An empty result is retried exactly like a transport failure.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTransport, ErrorTypeRateLimit, ErrorTypeEmptyResult:
		return true
	default:
		return false
	}
}
