package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/llmgate/llmgate/internal/resilience"
)

func TestRecordTokens(t *testing.T) {
	before := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4", "prompt"))
	RecordTokens("openai", "gpt-4", 10, 25)

	assert.Equal(t, before+10, testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4", "prompt")))
	assert.Equal(t, float64(25), testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4", "completion")))
}

func TestRecordTokens_ZeroValuesSkipped(t *testing.T) {
	before := testutil.ToFloat64(TokensTotal.WithLabelValues("anthropic", "claude-3-opus", "prompt"))
	RecordTokens("anthropic", "claude-3-opus", 0, 0)
	assert.Equal(t, before, testutil.ToFloat64(TokensTotal.WithLabelValues("anthropic", "claude-3-opus", "prompt")))
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("openai", resilience.StateOpen)
	assert.Equal(t, float64(1), testutil.ToFloat64(CircuitBreakerState.WithLabelValues("openai")))

	SetBreakerState("openai", resilience.StateHalfOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(CircuitBreakerState.WithLabelValues("openai")))

	SetBreakerState("openai", resilience.StateClosed)
	assert.Equal(t, float64(0), testutil.ToFloat64(CircuitBreakerState.WithLabelValues("openai")))
}

func TestRecordCacheHitMiss(t *testing.T) {
	hitsBefore := testutil.ToFloat64(CacheHits.WithLabelValues("idempotency"))
	missesBefore := testutil.ToFloat64(CacheMisses.WithLabelValues("idempotency"))

	RecordCacheHit("idempotency")
	RecordCacheMiss("idempotency")
	RecordCacheMiss("idempotency")

	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(CacheHits.WithLabelValues("idempotency")))
	assert.Equal(t, missesBefore+2, testutil.ToFloat64(CacheMisses.WithLabelValues("idempotency")))
}

func TestRecordRateLimitExceeded(t *testing.T) {
	before := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("10.0.0.1"))
	RecordRateLimitExceeded("10.0.0.1")
	assert.Equal(t, before+1, testutil.ToFloat64(RateLimitExceeded.WithLabelValues("10.0.0.1")))
}

func TestMiddleware_RecordsStatusAndDuration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /teapot", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /teapot", "418"))

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /teapot", "418")))
}

func TestMiddleware_DefaultsTo200(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /implicit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	handler := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /implicit", "200"))

	req := httptest.NewRequest(http.MethodGet, "/implicit", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /implicit", "200")))
}

func TestMiddleware_UnmatchedRoutesShareOneLabel(t *testing.T) {
	handler := Middleware(http.NewServeMux())

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", RouteUnmatched, "404"))

	for _, path := range []string{"/wp-admin.php", "/.env", "/v1/nope"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", RouteUnmatched, "404")))
}
