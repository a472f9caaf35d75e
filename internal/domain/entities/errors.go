package entities

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSlides is returned when a document contains no slide sections
var ErrNoSlides = errors.New("no slides found")

// ValidationError reports a missing or malformed request field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ExternalServiceError reports a failure of the LLM or an image provider
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Service, msg)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// RateLimitError reports that a client exceeded its request window
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded, resets at %s", e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}
