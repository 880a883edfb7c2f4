// Package errors defines unified error types for gateway operations.
// All provider-specific errors are mapped to these standard error types,
// and the retry and circuit breaker layers inspect the Retryable flag
// instead of unwrapping provider error chains.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// LLMError represents a standardized error from an LLM provider or from
// the reliability pipeline in front of it.
type LLMError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *LLMError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeCircuitOpen        = "circuit_open_error"
)

// CircuitOpenMessage is the fallback message the breaker returns while open.
const CircuitOpenMessage = "Circuit breaker is OPEN"

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408).
// Timeouts at the orchestrator boundary are not retried.
func NewTimeoutError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTransportError wraps a network-level failure. The vendor never
// responded, so the call is safe to retry.
func NewTransportError(provider, model string, err error) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    err.Error(),
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewCircuitOpenError creates the fallback error the breaker returns
// without invoking the protected call.
func NewCircuitOpenError(provider string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    CircuitOpenMessage,
		Type:       TypeCircuitOpen,
		Provider:   provider,
		Retryable:  false,
	}
}

// IsRetryable reports whether the retry driver may schedule another
// attempt for this error. Errors that are not LLMErrors are treated as
// transient by default, matching the classification of transport and
// unknown failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return true
}

// IsCircuitOpen reports whether err is the breaker's open fallback.
func IsCircuitOpen(err error) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr) && llmErr.Type == TypeCircuitOpen
}

// ClassifyStatus maps an upstream HTTP status to retryability:
// 5xx and 429 are retryable, every other status that produced a body
// is a definitive vendor answer.
func ClassifyStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
