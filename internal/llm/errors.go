package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies provider failures for retry and display handling.
type ErrorType string

const (
	ErrorTypeRateLimit    ErrorType = "rate_limit"     // 429
	ErrorTypeServerError  ErrorType = "server_error"   // 5xx
	ErrorTypeTimeout      ErrorType = "timeout"        // request deadline hit
	ErrorTypeAuth         ErrorType = "auth"           // 401/403 - bad or revoked API key
	ErrorTypeInvalid      ErrorType = "invalid"        // 400/422 - malformed request
	ErrorTypeStreamBroken ErrorType = "stream_broken"  // stream ended before completion
	ErrorTypeUnknown      ErrorType = "unknown"
)

// ProviderError is a structured error returned by chat clients. Retryable
// marks transient failures; auth and validation failures never retry.
// Message text never carries credentials.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	Code       string
	Message    string
	RetryAfter *time.Duration
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Provider, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsProviderError checks if err is a ProviderError and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	pe, ok := IsProviderError(err)
	return ok && pe.Retryable
}

// NewProviderError creates a ProviderError with the given classification.
func NewProviderError(provider string, errType ErrorType, code, message string) *ProviderError {
	retryable := false
	switch errType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout:
		retryable = true
	}
	return &ProviderError{
		Type:      errType,
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
}
