// Package provider defines the public interface for LLM provider adapters.
// Each provider (OpenAI, Anthropic) implements this interface to handle
// request/response transformation; the orchestrator performs the HTTP
// round trip and error mapping through it.
package provider

import (
	"context"
	"net/http"

	"github.com/llmgate/llmgate/pkg/types"
)

// Provider defines the interface that all LLM provider adapters implement.
// Adapters never return both a response and an error: the (response, error)
// pair is the tagged result the reliability pipeline inspects, with
// retryability carried on *errors.LLMError.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// SupportedModels returns the list of models this provider can handle.
	SupportedModels() []string

	// BuildRequest transforms a unified ChatRequest into a provider-specific
	// HTTP request. It handles parameter mapping, header setup, and body
	// serialization.
	BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error)

	// ParseResponse transforms a provider-specific success response into the
	// unified ChatResponse. Missing usage fields default to zero.
	ParseResponse(resp *http.Response) (*types.ChatResponse, error)

	// MapError converts a provider-specific error response into a
	// standardized *errors.LLMError with retryability classified.
	MapError(statusCode int, body []byte) error
}

// Config contains provider-specific configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Models  []string
	Headers map[string]string
}
