// Package types defines the wire types for the gateway's chat completion API.
// The request format follows the OpenAI chat shape; the response is the
// gateway's unified format that every provider adapter emits.
package types //nolint:revive // package name is intentional

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Finish reasons every adapter normalizes to.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// DefaultTimeoutMS bounds the whole orchestrated call when the client
// does not supply a timeout.
const DefaultTimeoutMS = 30000

var validRoles = map[string]struct{}{
	"system":    {},
	"user":      {},
	"assistant": {},
}

// ChatMessage represents a single message in the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the unified input format accepted by the gateway.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	TimeoutMS   int           `json:"timeout,omitempty"`
}

// FieldError describes a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates field errors for a rejected request.
type ValidationError struct {
	Details []FieldError `json:"details"`
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s", e.Details[0].Error())
}

// Validate checks the request against the gateway schema.
// It returns a *ValidationError listing every failing field.
func (r *ChatRequest) Validate() error {
	var details []FieldError

	if r.Model == "" {
		details = append(details, FieldError{Field: "model", Message: "model is required"})
	}
	if len(r.Messages) == 0 {
		details = append(details, FieldError{Field: "messages", Message: "at least one message is required"})
	}
	for i, msg := range r.Messages {
		if _, ok := validRoles[msg.Role]; !ok {
			details = append(details, FieldError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("role must be one of system, user, assistant; got %q", msg.Role),
			})
		}
		if msg.Content == "" {
			details = append(details, FieldError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "content is required",
			})
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		details = append(details, FieldError{Field: "temperature", Message: "temperature must be between 0 and 2"})
	}
	if r.MaxTokens < 0 {
		details = append(details, FieldError{Field: "maxTokens", Message: "maxTokens must be a positive integer"})
	}
	if r.TimeoutMS < 0 {
		details = append(details, FieldError{Field: "timeout", Message: "timeout must be a positive integer"})
	}
	if r.Provider != "" && r.Provider != "openai" && r.Provider != "anthropic" {
		details = append(details, FieldError{Field: "provider", Message: "provider must be openai or anthropic"})
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// Usage contains token usage statistics for a completed request.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is the unified response format.
// All provider responses are transformed into this shape.
type ChatResponse struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Validate checks that a provider produced a well-formed response.
// The route re-validates responses before emitting them.
func (r *ChatResponse) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("response id is empty")
	}
	if r.Model == "" {
		return fmt.Errorf("response model is empty")
	}
	switch r.FinishReason {
	case FinishReasonStop, FinishReasonLength, FinishReasonContentFilter:
	default:
		return fmt.Errorf("invalid finish reason %q", r.FinishReason)
	}
	if r.Usage.PromptTokens < 0 || r.Usage.CompletionTokens < 0 || r.Usage.TotalTokens < 0 {
		return fmt.Errorf("usage counts must be non-negative")
	}
	return nil
}

// Marshal encodes the response for caching and replay.
func (r *ChatResponse) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
