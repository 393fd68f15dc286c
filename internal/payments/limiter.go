package payments

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultVerifyWindow      = 30 * time.Minute
	DefaultVerifyMaxAttempts = 5

	sweepEvery = 256
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed  bool
	Attempts int
}

// AttemptLimiter bounds verification attempts per key within a sliding window.
// It is a brake on retries and signature guessing, not a security boundary.
type AttemptLimiter interface {
	Check(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

type attemptEntry struct {
	count int
	last  time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are per instance
// and are lost on restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	entries map[string]*attemptEntry
	checks  int
	now     func() time.Time
}

func NewMemoryLimiter(window time.Duration, limit int) *MemoryLimiter {
	if window <= 0 {
		window = DefaultVerifyWindow
	}
	if limit <= 0 {
		limit = DefaultVerifyMaxAttempts
	}
	return &MemoryLimiter{
		window:  window,
		limit:   limit,
		entries: make(map[string]*attemptEntry),
		now:     time.Now,
	}
}

// Check counts an attempt. A key idle for longer than the window starts over at 1.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.checks++
	if l.checks%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.last) > l.window {
		entry = &attemptEntry{}
		l.entries[key] = entry
	}
	entry.count++
	entry.last = now

	return Decision{Allowed: entry.count <= l.limit, Attempts: entry.count}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Len is the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.last) > l.window {
			delete(l.entries, key)
		}
	}
}
