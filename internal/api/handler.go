// Package api provides the gateway's HTTP surface: chat completions,
// health, model listing, and the middleware stack in front of them.
package api //nolint:revive // package name is intentional

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/llmgate/llmgate/internal/gateway"
	"github.com/llmgate/llmgate/internal/idempotency"
	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/observability"
	"github.com/llmgate/llmgate/pkg/types"
)

// IdempotencyKeyHeader carries the client's replay key.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// CachedHeader marks a response replayed from the idempotency store.
const CachedHeader = "X-Cached"

// Handler handles HTTP requests for the gateway API.
type Handler struct {
	orchestrator *gateway.Orchestrator
	store        *idempotency.Store
	logger       *observability.Logger
	startTime    time.Time
}

// NewHandler creates a new API handler.
func NewHandler(orchestrator *gateway.Orchestrator, store *idempotency.Store, logger *observability.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger,
		startTime:    time.Now(),
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithRequestID(r.Context())

	idemKey := r.Header.Get(IdempotencyKeyHeader)
	if idemKey != "" {
		if cached, found := h.store.Get(idemKey); found {
			metrics.RecordCacheHit("idempotency")
			log.Debug("idempotency cache hit", "key", idemKey)
			w.Header().Set(CachedHeader, "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
		metrics.RecordCacheMiss("idempotency")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeValidationError(w, []types.FieldError{{Field: "body", Message: "failed to read request body"}})
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, []types.FieldError{{Field: "body", Message: "invalid JSON"}})
		return
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			writeValidationError(w, valErr.Details)
		} else {
			writeValidationError(w, []types.FieldError{{Field: "body", Message: err.Error()}})
		}
		return
	}

	resp, err := h.orchestrator.Chat(r.Context(), &req)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	// Providers are not trusted to always emit a well-formed response.
	if err := resp.Validate(); err != nil {
		log.Error("provider emitted invalid response", "error", err)
		writeInternalError(w, r)
		return
	}

	out, err := resp.Marshal()
	if err != nil {
		writeInternalError(w, r)
		return
	}

	if idemKey != "" {
		h.store.Set(idemKey, out)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	RequestID string  `json:"requestId"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Seconds(),
		RequestID: observability.RequestIDFromContext(r.Context()),
	})
}

// ModelInfo describes one model in the listing.
type ModelInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// ModelsResponse is the model listing payload.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Models handles GET /v1/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	known := h.orchestrator.Models()

	models := make([]ModelInfo, 0, len(known))
	for id, providerName := range known {
		models = append(models, ModelInfo{ID: id, Provider: providerName})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}
