// Package metrics provides Prometheus metrics collection for the gateway.
// It tracks HTTP traffic, provider latency, token usage, cache activity,
// circuit breaker state, and rate limit rejections.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/llmgate/llmgate/internal/resilience"
)

const namespace = "llm_gateway"

var (
	// HTTPRequestDuration tracks end-to-end request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestsTotal counts HTTP requests per route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// ProviderLatency tracks upstream provider call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Upstream provider call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "model", "status"},
	)

	// TokensTotal counts tokens consumed, split by type (prompt, completion).
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	// CacheHits counts idempotency cache hits.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		[]string{"type"},
	)

	// CacheMisses counts idempotency cache misses.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"type"},
	)

	// CircuitBreakerState exposes each provider breaker's state
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// RateLimitExceeded counts rejected requests per client key.
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_exceeded_total",
			Help:      "Total requests rejected by the rate limiter",
		},
		[]string{"key"},
	)
)

// RecordProviderCall records latency and outcome of one upstream call.
func RecordProviderCall(provider, model, status string, latency time.Duration) {
	ProviderLatency.WithLabelValues(provider, model, status).Observe(latency.Seconds())
}

// RecordTokens records token usage for a completed request.
func RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		TokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		TokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordCacheHit records an idempotency cache hit.
func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records an idempotency cache miss.
func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordRateLimitExceeded records a rate-limited request.
func RecordRateLimitExceeded(key string) {
	RateLimitExceeded.WithLabelValues(key).Inc()
}

// SetBreakerState updates the breaker state gauge for a provider.
func SetBreakerState(provider string, state resilience.CircuitState) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, route string, statusCode int, latency time.Duration) {
	status := strconv.Itoa(statusCode)
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(latency.Seconds())
}
