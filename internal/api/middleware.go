package api //nolint:revive // package name is intentional

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/observability"
	"github.com/llmgate/llmgate/internal/resilience"
)

// Rate limit response headers.
const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)

// RateLimitMiddleware enforces the fixed-window limiter per client IP.
// Every response carries the limit headers; rejected requests get 429
// with the seconds until the window resets.
func RateLimitMiddleware(limiter *resilience.FixedWindowLimiter, logger *observability.Logger) func(http.Handler) http.Handler {
	limiter.OnExceeded(metrics.RecordRateLimitExceeded)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			result := limiter.Check(key)

			w.Header().Set(RateLimitLimitHeader, strconv.Itoa(limiter.Limit()))
			w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(result.Remaining))
			w.Header().Set(RateLimitResetHeader, result.ResetTime.UTC().Format(time.RFC3339))

			if !result.Allowed {
				retryAfter := int(math.Ceil(time.Until(result.ResetTime).Seconds()))
				if retryAfter < 0 {
					retryAfter = 0
				}
				logger.WithRequestID(r.Context()).Warn("rate limit exceeded",
					"key", key, "retryAfter", retryAfter)
				writeRateLimitError(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware converts panics into 500 responses carrying the
// request ID, so one broken request never takes the process down.
func RecoveryMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithRequestID(r.Context()).Error("panic recovered",
						"panic", rec, "path", r.URL.Path)
					writeInternalError(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address for rate limiting: the first
// X-Forwarded-For hop when present, the connection peer otherwise.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
