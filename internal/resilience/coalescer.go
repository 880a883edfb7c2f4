package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/llmgate/llmgate/pkg/types"
)

// DefaultCoalescerWindow bounds how long new callers may attach to a
// pending call.
const DefaultCoalescerWindow = 100 * time.Millisecond

// pendingCall is one in-flight computation shared by coalesced callers.
type pendingCall struct {
	done      chan struct{}
	resp      *types.ChatResponse
	err       error
	startedAt time.Time
}

// Coalescer deduplicates concurrent identical calls: callers arriving
// with the same key while an entry is pending and younger than the
// window share the original call's resolution. Entries older than the
// window are treated as absent for admission, but still complete for
// the callers already attached.
type Coalescer struct {
	mu     sync.Mutex
	window time.Duration
	calls  map[string]*pendingCall
}

// NewCoalescer creates a coalescer with the given staleness window.
func NewCoalescer(window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultCoalescerWindow
	}
	return &Coalescer{
		window: window,
		calls:  make(map[string]*pendingCall),
	}
}

// Execute runs fn under the key, or joins an in-flight call for the
// same key. fn is invoked at most once per (key, window); every joined
// caller observes the same value or the same error.
func (c *Coalescer) Execute(ctx context.Context, key string, fn Func) (*types.ChatResponse, error) {
	c.mu.Lock()
	if p, ok := c.calls[key]; ok && time.Since(p.startedAt) < c.window {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.resp, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p := &pendingCall{
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	c.calls[key] = p
	c.mu.Unlock()

	p.resp, p.err = fn(ctx)

	c.mu.Lock()
	// A stale entry may already have been replaced; only the owner
	// removes its own entry.
	if c.calls[key] == p {
		delete(c.calls, key)
	}
	c.mu.Unlock()
	close(p.done)

	return p.resp, p.err
}

// Pending returns the number of in-flight entries.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
