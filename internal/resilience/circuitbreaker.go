// Package resilience provides the reliability pipeline for the LLM gateway:
// circuit breaking, bounded-backoff retry, request coalescing, and
// fixed-window rate limiting. Each component owns one mutable container
// and serializes mutations behind its own lock.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/types"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen resolves every fire with the fallback.
	StateOpen
	// StateHalfOpen admits a single probe to test recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Func is the unit of work the pipeline wraps: one provider call.
type Func func(ctx context.Context) (*types.ChatResponse, error)

// BreakerConfig contains configuration for a circuit breaker.
type BreakerConfig struct {
	// ErrorThresholdPercentage is the rolling error rate (0-100) at which
	// the breaker opens.
	ErrorThresholdPercentage int
	// MinimumRequests is the sample size required before the threshold
	// is evaluated.
	MinimumRequests int
	// RollingWindow bounds the age of the outcome statistics.
	RollingWindow time.Duration
	// ResetTimeout is how long the breaker stays open before admitting
	// a half-open probe.
	ResetTimeout time.Duration
	// CallTimeout bounds each protected call; exceeding it counts as a
	// failure outcome.
	CallTimeout time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ErrorThresholdPercentage: 50,
		MinimumRequests:          5,
		RollingWindow:            10 * time.Second,
		ResetTimeout:             60 * time.Second,
		CallTimeout:              30 * time.Second,
	}
}

func (cfg BreakerConfig) withDefaults() BreakerConfig {
	def := DefaultBreakerConfig()
	if cfg.ErrorThresholdPercentage <= 0 {
		cfg.ErrorThresholdPercentage = def.ErrorThresholdPercentage
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = def.MinimumRequests
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = def.RollingWindow
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return cfg
}

// Breaker implements the circuit breaker pattern for one provider.
// It prevents cascading failures by resolving fires with a fallback
// while the provider is unhealthy.
type Breaker struct {
	mu            sync.Mutex
	name          string
	state         CircuitState
	successes     int
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	probeInFlight bool
	cfg           BreakerConfig
	onStateChange func(name string, from, to CircuitState)
}

// NewBreaker creates a circuit breaker for the named provider.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		name:        name,
		state:       StateClosed,
		windowStart: time.Now(),
		cfg:         cfg.withDefaults(),
	}
}

// OnStateChange sets a callback invoked on every state transition.
// The callback runs outside the breaker lock.
func (b *Breaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Fire runs fn under the breaker's state machine.
// While open it returns the fallback without invoking fn; in half-open
// it admits a single probe whose outcome decides the next transition.
// Each call is bounded by CallTimeout and a timeout counts as a failure.
func (b *Breaker) Fire(ctx context.Context, fn Func) (*types.ChatResponse, error) {
	probe, ok := b.admit()
	if !ok {
		return nil, errors.NewCircuitOpenError(b.name)
	}

	resp, err := b.call(ctx, fn)
	b.record(err == nil, probe)
	return resp, err
}

// call bounds fn by CallTimeout. The goroutine-and-select shape keeps the
// bound hard even when fn ignores its context.
func (b *Breaker) call(ctx context.Context, fn Func) (*types.ChatResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	type callResult struct {
		resp *types.ChatResponse
		err  error
	}
	done := make(chan callResult, 1)
	go func() {
		resp, err := fn(cctx)
		done <- callResult{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-cctx.Done():
		return nil, errors.NewTimeoutError(b.name, "",
			fmt.Sprintf("call did not complete within %s", b.cfg.CallTimeout))
	}
}

// admit decides whether a fire may proceed. The second return value is
// false when the breaker is open (or a probe is already in flight).
// The first return value marks the admitted call as the half-open probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, true

	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.ResetTimeout {
			b.transitionTo(StateHalfOpen)
			b.probeInFlight = true
			return true, true
		}
		return false, false

	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true, true
		}
		return false, false

	default:
		return false, false
	}
}

// record feeds one outcome into the state machine.
func (b *Breaker) record(success, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeInFlight = false
		if b.state != StateHalfOpen {
			return
		}
		if success {
			b.transitionTo(StateClosed)
			b.resetStats()
		} else {
			b.openedAt = time.Now()
			b.transitionTo(StateOpen)
		}
		return
	}

	if b.state != StateClosed {
		// Outcome of a call admitted before a concurrent transition;
		// it no longer influences the window.
		return
	}

	b.rotateWindow()
	if success {
		b.successes++
		return
	}
	b.failures++

	total := b.successes + b.failures
	if total < b.cfg.MinimumRequests {
		return
	}
	if b.failures*100 >= b.cfg.ErrorThresholdPercentage*total {
		b.openedAt = time.Now()
		b.transitionTo(StateOpen)
	}
}

// rotateWindow discards statistics older than the rolling window.
func (b *Breaker) rotateWindow() {
	now := time.Now()
	if now.Sub(b.windowStart) >= b.cfg.RollingWindow {
		b.windowStart = now
		b.successes = 0
		b.failures = 0
	}
}

func (b *Breaker) resetStats() {
	b.successes = 0
	b.failures = 0
	b.windowStart = time.Now()
}

func (b *Breaker) transitionTo(newState CircuitState) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	if b.onStateChange != nil {
		// Call callback without holding the lock.
		go b.onStateChange(b.name, oldState, newState)
	}
}
