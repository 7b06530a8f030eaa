// Package jobs provides a bounded in-process worker pool for background
// tasks that must not block request handling.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Enqueue when the queue is stopped or was
// never started.
var ErrQueueClosed = errors.New("jobs: queue closed")

// Job is a unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler executes one job. A non-nil error triggers in-worker retries.
type Handler func(context.Context, Job) error

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (c *QueueConfig) normalise() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Queue fans jobs out to a fixed pool of goroutines. Retries happen inside
// the worker that picked the job up, with linear backoff, so a flaky
// downstream slows one worker instead of refilling the buffer.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig

	tasks  chan Job
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	wg      sync.WaitGroup
	running bool
}

// NewQueue builds an idle queue. Call Start before Enqueue.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	cfg.normalise()
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		tasks:   make(chan Job, cfg.BufferSize),
	}
}

// Start launches the worker pool. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.cfg.Logger.Sugar().Infow("job queue started", "queue", q.name, "workers", q.cfg.Workers)
}

// Stop signals the workers and blocks until they exit. Buffered jobs not
// yet picked up are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.cfg.Logger.Sugar().Infow("job queue stopped", "queue", q.name)
}

// Enqueue hands a job to the pool, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	running := q.running
	ctx := q.ctx
	q.mu.Unlock()
	if !running {
		return ErrQueueClosed
	}

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.tasks <- job:
		return nil
	case <-ctx.Done():
		return ErrQueueClosed
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.tasks:
			q.process(job)
		}
	}
}

func (q *Queue) process(job Job) {
	log := q.cfg.Logger.Sugar()
	for attempt := 1; ; attempt++ {
		err := q.handler(q.ctx, job)
		if err == nil {
			return
		}
		if attempt > q.cfg.MaxRetries {
			log.Errorw("job abandoned", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempts", attempt, "error", err)
			return
		}
		log.Warnw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", attempt, "error", err)

		timer := time.NewTimer(time.Duration(attempt) * q.cfg.RetryDelay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
