package crawler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// Task is one "fetch and parse a single source" unit of work. The context
// carries the per-attempt timeout; a task past its network phase is
// abandoned, not interrupted.
type Task func(ctx context.Context) ([]*gofeed.Item, error)

// TaskResult is what a submitted task resolves to. The queue never fails a
// Submit because of an individual task: errors live here.
type TaskResult struct {
	Items    []*gofeed.Item
	Err      error
	Attempts int
}

// QueueConfig bounds the fetch queue.
type QueueConfig struct {
	Concurrency int           // in-flight tasks (default 5)
	Timeout     time.Duration // per-attempt timeout (default 20s)
	MaxRetries  int           // retries after the first attempt (default 3)
	RetryBase   time.Duration // linear backoff base (default 3s)
}

// DefaultQueueConfig matches the crawler's design defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 5,
		Timeout:     20 * time.Second,
		MaxRetries:  3,
		RetryBase:   3 * time.Second,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.Concurrency < 1 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	return c
}

// backoffDelay computes the wait before retry attempt n (1-based):
// n × base, the same linear schedule for every task.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * base
}

type queuedTask struct {
	run  Task
	done chan TaskResult
}

// Queue runs fetch tasks with bounded parallelism. Tasks beyond the
// concurrency limit wait in FIFO order. Each worker applies the per-attempt
// timeout and the retry schedule; a task that exhausts its retries resolves
// to a failure result without affecting sibling tasks.
type Queue struct {
	cfg    QueueConfig
	tasks  chan queuedTask
	wg     sync.WaitGroup
	logger *log.Logger

	closeOnce sync.Once
}

// NewQueue starts the worker pool immediately.
func NewQueue(cfg QueueConfig, logger *log.Logger) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		cfg:    cfg,
		tasks:  make(chan queuedTask, 256),
		logger: logger,
	}
	for i := 0; i < cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a task and returns the channel its result will arrive on.
// The channel is buffered; callers may collect results in any order.
func (q *Queue) Submit(task Task) <-chan TaskResult {
	done := make(chan TaskResult, 1)
	q.tasks <- queuedTask{run: task, done: done}
	return done
}

// Close stops intake and waits for in-flight tasks to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		t.done <- q.runWithRetry(t.run)
	}
}

func (q *Queue) runWithRetry(task Task) TaskResult {
	var result TaskResult
	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.Timeout)
		items, err := task(ctx)
		cancel()

		if err == nil {
			result.Items = items
			result.Err = nil
			return result
		}
		result.Err = err

		if attempt < q.cfg.MaxRetries {
			delay := backoffDelay(attempt+1, q.cfg.RetryBase)
			q.logger.Printf("Fetch attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
			time.Sleep(delay)
		}
	}
	return result
}
