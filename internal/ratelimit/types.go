package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Policy is a named limit applied per key over a fixed window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Key scopes subject (usually a client IP) to the policy.
func (p Policy) Key(subject string) string {
	if p.Name == "" || subject == "" {
		return ""
	}
	return p.Name + ":" + subject
}

// windowBounds returns the index of the window containing now and when it ends.
func windowBounds(window time.Duration, now time.Time) (int64, time.Time) {
	if window < time.Second {
		window = time.Second
	}
	size := int64(window / time.Second)
	index := now.Unix() / size
	return index, time.Unix((index+1)*size, 0).UTC()
}
