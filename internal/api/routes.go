package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmgate/llmgate/internal/observability"
	"github.com/llmgate/llmgate/internal/resilience"
)

// NewServeMux builds the gateway's route table. The rate limiter guards
// only the chat completions endpoint; health, models, and metrics stay
// reachable while a client is throttled.
func NewServeMux(h *Handler, limiter *resilience.FixedWindowLimiter, logger *observability.Logger) *http.ServeMux {
	rateLimit := RateLimitMiddleware(limiter, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", rateLimit(http.HandlerFunc(h.ChatCompletions)))
	mux.HandleFunc("GET /v1/models", h.Models)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
