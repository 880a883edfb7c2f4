package resilience

import (
	"sync"
	"time"
)

// RateLimitResult is the header-ready snapshot a check produces.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type rateEntry struct {
	count     int
	resetTime time.Time
}

// FixedWindowLimiter implements a fixed-window counter per key.
// A key's window starts at its first request and admits at most
// maxRequests until resetTime passes, after which the next check
// starts a fresh window.
type FixedWindowLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	entries    map[string]*rateEntry
	lastPrune  time.Time
	onExceeded func(key string)
}

// NewFixedWindowLimiter creates a limiter admitting max requests per
// window per key.
func NewFixedWindowLimiter(max int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		max:       max,
		window:    window,
		entries:   make(map[string]*rateEntry),
		lastPrune: time.Now(),
	}
}

// OnExceeded sets a callback invoked for every rejected check.
func (l *FixedWindowLimiter) OnExceeded(fn func(key string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onExceeded = fn
}

// Limit returns the per-window maximum.
func (l *FixedWindowLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max
}

// SetLimits replaces the per-window maximum and window duration.
// Existing windows are discarded so the new limits take effect
// immediately. Non-positive values are ignored.
func (l *FixedWindowLimiter) SetLimits(max int, window time.Duration) {
	if max <= 0 || window <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = max
	l.window = window
	l.entries = make(map[string]*rateEntry)
}

// Check records one request for the key and reports whether it is
// admitted. Checks on the same key are atomic with respect to each other.
func (l *FixedWindowLimiter) Check(key string) RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) >= l.window {
		l.pruneLocked(now)
		l.lastPrune = now
	}

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetTime) {
		entry = &rateEntry{count: 1, resetTime: now.Add(l.window)}
		l.entries[key] = entry
		return RateLimitResult{Allowed: true, Remaining: l.max - 1, ResetTime: entry.resetTime}
	}

	if entry.count >= l.max {
		if l.onExceeded != nil {
			l.onExceeded(key)
		}
		return RateLimitResult{Allowed: false, Remaining: 0, ResetTime: entry.resetTime}
	}

	entry.count++
	return RateLimitResult{Allowed: true, Remaining: l.max - entry.count, ResetTime: entry.resetTime}
}

// Prune drops entries whose window has passed. Check prunes
// opportunistically at most once per window; correctness does not
// depend on pruning at all.
func (l *FixedWindowLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
}

func (l *FixedWindowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.entries {
		if now.After(entry.resetTime) {
			delete(l.entries, key)
		}
	}
}
