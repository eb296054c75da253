package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestQueueRetries(t *testing.T) {
	cfg := QueueConfig{Concurrency: 2, Timeout: time.Second, MaxRetries: 3, RetryBase: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		q := NewQueue(cfg, testLogger())
		defer q.Close()

		var calls int32
		res := <-q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, errors.New("transient")
			}
			return []*gofeed.Item{{Title: "ok"}}, nil
		})

		if res.Err != nil {
			t.Fatalf("Expected success after retries, got %v", res.Err)
		}
		if res.Attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", res.Attempts)
		}
		if len(res.Items) != 1 {
			t.Errorf("Expected 1 item, got %d", len(res.Items))
		}
	})

	t.Run("exhausts retries", func(t *testing.T) {
		q := NewQueue(cfg, testLogger())
		defer q.Close()

		res := <-q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
			return nil, errors.New("permanent")
		})

		if res.Err == nil {
			t.Fatal("Expected failure after exhausting retries")
		}
		if res.Attempts != cfg.MaxRetries+1 {
			t.Errorf("Expected %d attempts, got %d", cfg.MaxRetries+1, res.Attempts)
		}
	})

	t.Run("per attempt timeout", func(t *testing.T) {
		q := NewQueue(QueueConfig{Concurrency: 1, Timeout: 20 * time.Millisecond, MaxRetries: 1, RetryBase: time.Millisecond}, testLogger())
		defer q.Close()

		res := <-q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		if !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", res.Err)
		}
	})
}

func TestQueueConcurrencyBound(t *testing.T) {
	const limit = 3
	q := NewQueue(QueueConfig{Concurrency: limit, Timeout: time.Second, MaxRetries: 0, RetryBase: time.Millisecond}, testLogger())
	defer q.Close()

	var inflight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		done := q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
			n := atomic.AddInt32(&inflight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			return nil, nil
		})
		go func() {
			defer wg.Done()
			<-done
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > limit {
		t.Errorf("Concurrency bound violated: peak %d > limit %d", p, limit)
	}
}

func TestQueueFailureIsolation(t *testing.T) {
	q := NewQueue(QueueConfig{Concurrency: 2, Timeout: time.Second, MaxRetries: 0, RetryBase: time.Millisecond}, testLogger())
	defer q.Close()

	bad := q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
		return nil, errors.New("boom")
	})
	good := q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
		return []*gofeed.Item{{Title: "fine"}}, nil
	})

	if res := <-bad; res.Err == nil {
		t.Error("Expected failing task to report its error")
	}
	if res := <-good; res.Err != nil || len(res.Items) != 1 {
		t.Errorf("Sibling task affected by failure: %+v", res)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 3 * time.Second
	for attempt, want := range map[int]time.Duration{
		1: 3 * time.Second,
		2: 6 * time.Second,
		3: 9 * time.Second,
	} {
		if got := backoffDelay(attempt, base); got != want {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
	if got := backoffDelay(0, base); got != base {
		t.Errorf("backoffDelay clamps below 1, got %v", got)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue(QueueConfig{Concurrency: 2, Timeout: time.Second, MaxRetries: 0, RetryBase: time.Millisecond}, testLogger())

	results := make([]<-chan TaskResult, 0, 4)
	for i := 0; i < 4; i++ {
		i := i
		results = append(results, q.Submit(func(ctx context.Context) ([]*gofeed.Item, error) {
			return []*gofeed.Item{{Title: fmt.Sprintf("task-%d", i)}}, nil
		}))
	}
	q.Close()

	for i, ch := range results {
		res := <-ch
		if res.Err != nil || len(res.Items) != 1 {
			t.Errorf("Task %d lost during close: %+v", i, res)
		}
	}
	// Close is idempotent.
	q.Close()
}
