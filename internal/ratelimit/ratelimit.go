package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limits configures a fixed window: at most MaxRequests per Window for each key.
type Limits struct {
	MaxRequests int
	Window      time.Duration
}

type Result struct {
	Success   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds and never less
// than one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Store keeps the per-key counters. Increment adds one hit to the window of key, starting a new
// window of the given length when none is open, and reports the count and when the window ends.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

type Limiter struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check records a request for key and reports whether it fits within limits.
func (l *Limiter) Check(ctx context.Context, key string, limits Limits) (Result, error) {
	if limits.MaxRequests <= 0 || limits.Window <= 0 {
		return Result{}, fmt.Errorf("ratelimit: invalid limits %+v", limits)
	}
	count, resetAt, err := l.store.Increment(ctx, key, limits.Window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: increment %s: %w", key, err)
	}
	remaining := limits.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Success:   count <= int64(limits.MaxRequests),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
