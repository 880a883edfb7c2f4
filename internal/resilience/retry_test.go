package resilience

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/types"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	resp, err := Retry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (*types.ChatResponse, error) {
		calls++
		return &types.ChatResponse{ID: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if resp.ID != "ok" {
		t.Errorf("resp.ID = %q", resp.ID)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_FailsNMinusOneThenSucceeds(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		calls := 0
		resp, err := Retry(context.Background(), fastRetryConfig(n), func(ctx context.Context) (*types.ChatResponse, error) {
			calls++
			if calls < n {
				return nil, errors.NewServiceUnavailableError("test", "", "transient")
			}
			return &types.ChatResponse{ID: "ok"}, nil
		})
		if err != nil {
			t.Fatalf("n=%d: Retry() error = %v", n, err)
		}
		if resp == nil || resp.ID != "ok" {
			t.Fatalf("n=%d: resp = %v", n, resp)
		}
		if calls != n {
			t.Errorf("n=%d: calls = %d, want %d", n, calls, n)
		}
	}
}

func TestRetry_AlwaysFailsInvokedExactlyN(t *testing.T) {
	for _, n := range []int{1, 3, 4} {
		calls := 0
		_, err := Retry(context.Background(), fastRetryConfig(n), func(ctx context.Context) (*types.ChatResponse, error) {
			calls++
			return nil, errors.NewServiceUnavailableError("test", "", "always down")
		})
		if err == nil {
			t.Fatalf("n=%d: expected error", n)
		}
		if calls != n {
			t.Errorf("n=%d: calls = %d, want %d", n, calls, n)
		}
		// The final error names the attempt count and the last failure.
		if !strings.Contains(err.Error(), "always down") {
			t.Errorf("n=%d: error %q does not include last error text", n, err)
		}
		if n == 3 && !strings.Contains(err.Error(), "3 attempts") {
			t.Errorf("error %q does not name the attempt count", err)
		}
	}
}

func TestRetry_NonRetryableShortCircuits(t *testing.T) {
	calls := 0
	original := errors.NewInvalidRequestError("test", "", "bad request")
	_, err := Retry(context.Background(), fastRetryConfig(5), func(ctx context.Context) (*types.ChatResponse, error) {
		calls++
		return nil, original
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable)", calls)
	}
	if err != original {
		t.Errorf("err = %v, want the original error propagated unchanged", err)
	}
}

func TestRetry_CircuitOpenFallbackShortCircuits(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetryConfig(5), func(ctx context.Context) (*types.ChatResponse, error) {
		calls++
		return nil, errors.NewCircuitOpenError("test")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.IsCircuitOpen(err) {
		t.Errorf("err = %v, want circuit open", err)
	}
}

func TestRetry_BackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Factor:       2,
	}

	start := time.Now()
	_, _ = Retry(context.Background(), cfg, func(ctx context.Context) (*types.ChatResponse, error) {
		return nil, errors.NewServiceUnavailableError("test", "", "down")
	})
	elapsed := time.Since(start)

	// Sleeps: 10ms, 20ms, 20ms (capped) = 50ms.
	if elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 50ms of backoff", elapsed)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("elapsed = %v, backoff exceeded the cap", elapsed)
	}
}

func TestRetry_ContextCancellationAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Factor:       2,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, cfg, func(ctx context.Context) (*types.ChatResponse, error) {
		return nil, errors.NewServiceUnavailableError("test", "", "down")
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not abort the backoff sleep")
	}
}
