package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/llmgate/llmgate/internal/observability"
	gwerrors "github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/types"
)

// ValidationErrorResponse is the 400 envelope.
type ValidationErrorResponse struct {
	Error   string             `json:"error"`
	Details []types.FieldError `json:"details"`
}

// RateLimitErrorResponse is the 429 envelope.
type RateLimitErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// InternalErrorResponse is the 500 envelope.
type InternalErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeValidationError(w http.ResponseWriter, details []types.FieldError) {
	writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation error",
		Details: details,
	})
}

func writeRateLimitError(w http.ResponseWriter, retryAfter int) {
	writeJSON(w, http.StatusTooManyRequests, RateLimitErrorResponse{
		Error:      "Too many requests",
		RetryAfter: retryAfter,
	})
}

func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusInternalServerError, InternalErrorResponse{
		Error:     "Internal server error",
		RequestID: observability.RequestIDFromContext(r.Context()),
	})
}

// writeUpstreamError surfaces a pipeline failure as 500 carrying the
// original error message.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	if llmErr, ok := err.(*gwerrors.LLMError); ok {
		message = llmErr.Message
	}
	writeJSON(w, http.StatusInternalServerError, InternalErrorResponse{
		Error:     message,
		RequestID: observability.RequestIDFromContext(r.Context()),
	})
}
