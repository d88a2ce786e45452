package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies failures for retry decisions and run summaries
type ErrorType string

const (
	// ErrorTypeNetwork represents timeouts, refused connections and non-200 statuses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents an expected structural element missing from a page
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeValidation represents a mandatory field missing from an extracted record
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeStorage represents object storage upload/list failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRateLimit represents upstream rate limiting responses
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeConfiguration represents startup misconfiguration; always fatal
	ErrorTypeConfiguration ErrorType = "configuration"
)

// IngestError is the error type carried through the crawl and image pipelines
type IngestError struct {
	Type    ErrorType
	Source  string // category label, product URL or component name
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *IngestError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a single local retry is worthwhile
func (e *IngestError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeParsing:
		return true
	default:
		return false
	}
}

// New creates a new IngestError
func New(errType ErrorType, source, message string, err error) *IngestError {
	return &IngestError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(source, message string, err error) *IngestError {
	return New(ErrorTypeNetwork, source, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(source, message string, err error) *IngestError {
	return New(ErrorTypeParsing, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *IngestError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(source, message string, err error) *IngestError {
	return New(ErrorTypeStorage, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *IngestError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *IngestError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the classification of err, or "unknown" for foreign errors
func TypeOf(err error) ErrorType {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Type
	}
	return ErrorType("unknown")
}

// Retryable reports whether err carries a retryable classification
func Retryable(err error) bool {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.IsRetryable()
	}
	// Unclassified errors get one retry; they are usually transport level.
	return true
}
