// Package ratelimit bounds outbound request throughput with a fixed
// 60-second quota window and, independently, caps the number of tasks
// in flight at once. Quota exhaustion fails fast; the in-flight cap
// queues callers in submission order instead.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const windowDuration = 60 * time.Second

// Error reports an exhausted quota window. RetryAfter is the time left
// until the window resets.
type Error struct {
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// Status is a read-only snapshot of the current window.
type Status struct {
	RequestCount int       `json:"request_count"`
	MaxRequests  int       `json:"max_requests"`
	ResetTime    time.Time `json:"reset_time"`
}

// Limiter implements the window quota plus the in-flight cap. The
// window counter is advanced under the mutex before the task runs, so
// concurrent callers cannot race past the quota.
type Limiter struct {
	mu           sync.Mutex
	windowStart  time.Time
	requestCount int
	maxRequests  int

	slots chan struct{} // in-flight cap; buffered, FIFO hand-off

	now func() time.Time // stubbed in tests
}

// New creates a limiter allowing maxRequests per 60s window and at most
// maxConcurrent tasks in flight.
func New(maxRequests, maxConcurrent int) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		slots:       make(chan struct{}, maxConcurrent),
		now:         time.Now,
	}
	l.windowStart = l.now()
	return l
}

// reserve consumes one unit of window quota. Caller must not hold mu.
func (l *Limiter) reserve() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= windowDuration {
		l.windowStart = now
		l.requestCount = 0
	}
	if l.requestCount >= l.maxRequests {
		return &Error{RetryAfter: windowDuration - now.Sub(l.windowStart)}
	}
	l.requestCount++
	return nil
}

// Execute runs task if the current window has quota left, otherwise it
// returns *Error immediately without running the task. When the
// in-flight cap is saturated the call blocks until a slot frees up or
// ctx is done; quota is only consumed once a slot is held.
func (l *Limiter) Execute(ctx context.Context, task func(context.Context) error) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()

	if err := l.reserve(); err != nil {
		return err
	}
	return task(ctx)
}

// GetStatus reports the current window without mutating it. The reset
// time is when the present window ends, even if the counter would be
// lazily reset on the next Execute.
func (l *Limiter) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.windowStart
	count := l.requestCount
	if l.now().Sub(start) >= windowDuration {
		count = 0
		start = l.now()
	}
	return Status{
		RequestCount: count,
		MaxRequests:  l.maxRequests,
		ResetTime:    start.Add(windowDuration),
	}
}
