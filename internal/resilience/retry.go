package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/types"
)

// RetryConfig holds configuration for the exponential backoff retry driver.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Factor <= 1 {
		cfg.Factor = def.Factor
	}
	return cfg
}

// Retry executes fn with bounded exponential backoff.
// Attempt i sleeps min(InitialDelay*Factor^(i-1), MaxDelay) before
// attempt i+1. Non-retryable failures short-circuit and propagate
// unchanged; exhausting the budget wraps the last error with the
// attempt count. Backoff sleeps respect context cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn Func) (*types.ChatResponse, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return nil, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}
