package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepThreshold triggers removal of stale windows once the map grows past it.
const memorySweepThreshold = 4096

type memoryEntry struct {
	window int64
	reset  time.Time
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	index, reset := windowBounds(window, now)

	l.mu.Lock()
	if len(l.counters) >= memorySweepThreshold {
		l.sweepLocked(now)
	}
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: index, reset: reset}
		l.counters[key] = entry
	}
	if entry.window != index {
		entry.window = index
		entry.reset = reset
		entry.count = 0
	}
	if entry.count >= limit {
		l.mu.Unlock()
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	remaining := limit - entry.count
	l.mu.Unlock()
	return Result{Allowed: true, Remaining: remaining, Reset: reset}, nil
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.counters {
		if !now.Before(entry.reset) {
			delete(l.counters, key)
		}
	}
}
