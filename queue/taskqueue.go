// Package queue implements the bounded worker pool (C5): a FIFO queue of
// opaque jobs drained by N worker goroutines, with a per-job handle the
// submitter can wait on.
package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/internal/util"
)

// Job is an opaque unit of background work.
type Job func(ctx context.Context) (interface{}, error)

// Handle is returned by Enqueue; the submitter calls Wait to block for
// the job's result. A job panic is recovered and returned as the error
// from Wait.
type Handle struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Wait blocks until the job completes and returns its result/error, or
// returns early if ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metrics reports task-queue depth and active-worker gauges.
type Metrics interface {
	SetQueueDepth(n int)
	SetQueueActive(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetQueueDepth(int)  {}
func (noopMetrics) SetQueueActive(int) {}

type job struct {
	fn Job
	h  *Handle
}

// TaskQueue is a bounded, parallel worker pool. States: stopped, running
// (see spec.md §4.9). Enqueue after Stop returns engine.ErrStopped.
type TaskQueue struct {
	workers int
	jobs    chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool

	queued util.PaddedAtomicInt64
	active util.PaddedAtomicInt64

	metrics Metrics
	log     *zap.SugaredLogger
}

// Option configures a TaskQueue at construction.
type Option func(*TaskQueue)

// WithWorkers overrides the worker count (default: GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithMetrics attaches a Metrics sink (e.g. metrics/prom.Adapter).
func WithMetrics(m Metrics) Option {
	return func(q *TaskQueue) { q.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(q *TaskQueue) { q.log = l }
}

// New constructs a TaskQueue. Call Start to begin processing.
func New(bufferSize int, opts ...Option) *TaskQueue {
	q := &TaskQueue{
		workers: runtime.GOMAXPROCS(0),
		jobs:    make(chan job, bufferSize),
		stopCh:  make(chan struct{}),
		metrics: noopMetrics{},
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Start launches the worker goroutines. Safe to call once.
func (q *TaskQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.workerLoop()
	}
}

// Stop signals workers to drain the queue and exit, then joins them.
// After Stop returns, Enqueue fails with engine.ErrStopped.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
}

// Enqueue submits a job and returns a Handle for its eventual result.
func (q *TaskQueue) Enqueue(j Job) (*Handle, error) {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return nil, engine.ErrStopped
	}

	h := &Handle{done: make(chan struct{})}
	q.queued.Add(1)
	q.metrics.SetQueueDepth(int(q.queued.Load()))
	select {
	case q.jobs <- job{fn: j, h: h}:
		return h, nil
	case <-q.stopCh:
		q.queued.Add(-1)
		return nil, engine.ErrStopped
	}
}

// QueueSize reports the number of jobs currently waiting to run.
func (q *TaskQueue) QueueSize() int { return int(q.queued.Load()) }

// ActiveCount reports the number of workers currently running a job.
func (q *TaskQueue) ActiveCount() int { return int(q.active.Load()) }

func (q *TaskQueue) workerLoop() {
	defer q.wg.Done()
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.queued.Add(-1)
			q.metrics.SetQueueDepth(int(q.queued.Load()))
			q.runJob(j)
		case <-q.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case j := <-q.jobs:
					q.queued.Add(-1)
					q.metrics.SetQueueDepth(int(q.queued.Load()))
					q.runJob(j)
				default:
					return
				}
			}
		}
	}
}

func (q *TaskQueue) runJob(j job) {
	q.active.Add(1)
	q.metrics.SetQueueActive(int(q.active.Load()))
	defer func() {
		q.active.Add(-1)
		q.metrics.SetQueueActive(int(q.active.Load()))
	}()

	defer func() {
		if r := recover(); r != nil {
			j.h.err = fmt.Errorf("task queue: job panicked: %v", r)
			q.log.Errorw("queue: job panicked", "panic", r)
			close(j.h.done)
		}
	}()

	result, err := j.fn(context.Background())
	j.h.result = result
	j.h.err = err
	close(j.h.done)
}
