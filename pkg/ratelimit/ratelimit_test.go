package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func noop(context.Context) error { return nil }

func TestExecuteQuota(t *testing.T) {
	l := New(3, 10)

	for i := 0; i < 3; i++ {
		if err := l.Execute(context.Background(), noop); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	err := l.Execute(context.Background(), noop)
	var rle *Error
	if !errors.As(err, &rle) {
		t.Fatalf("request 4: want *Error, got %v", err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > windowDuration {
		t.Errorf("RetryAfter = %v, want within (0, %v]", rle.RetryAfter, windowDuration)
	}
}

func TestWindowReset(t *testing.T) {
	now := time.Now()
	l := New(1, 10)
	l.now = func() time.Time { return now }
	l.windowStart = now

	if err := l.Execute(context.Background(), noop); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Execute(context.Background(), noop); err == nil {
		t.Fatal("second request in same window should be rejected")
	}

	// Advance past the window boundary.
	now = now.Add(windowDuration)
	if err := l.Execute(context.Background(), noop); err != nil {
		t.Fatalf("request after window reset: %v", err)
	}

	st := l.GetStatus()
	if st.RequestCount != 1 {
		t.Errorf("RequestCount after reset = %d, want 1", st.RequestCount)
	}
}

func TestQuotaReservedBeforeTaskRuns(t *testing.T) {
	l := New(5, 10)
	var during Status
	err := l.Execute(context.Background(), func(context.Context) error {
		during = l.GetStatus()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if during.RequestCount != 1 {
		t.Errorf("counter during task = %d, want 1 (incremented before dispatch)", during.RequestCount)
	}
}

func TestConcurrencyCapQueues(t *testing.T) {
	l := New(100, 2)

	var inFlight, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Execute(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("queued task failed: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
	if st := l.GetStatus(); st.RequestCount != 5 {
		t.Errorf("RequestCount = %d, want 5 (queued tasks run, not rejected)", st.RequestCount)
	}
}

func TestExecuteContextCanceledWhileQueued(t *testing.T) {
	l := New(100, 1)
	release := make(chan struct{})
	go l.Execute(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Execute(ctx, noop); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
	close(release)
}

func TestGetStatusIsPure(t *testing.T) {
	l := New(2, 2)
	_ = l.Execute(context.Background(), noop)
	before := l.GetStatus()
	for i := 0; i < 10; i++ {
		l.GetStatus()
	}
	after := l.GetStatus()
	if before.RequestCount != after.RequestCount {
		t.Errorf("GetStatus mutated the counter: %d -> %d", before.RequestCount, after.RequestCount)
	}
}
