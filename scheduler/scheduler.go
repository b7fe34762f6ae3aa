// Package scheduler implements the background job runner (C6): a single
// 1 Hz poll loop that fires named jobs on their own interval, guarding
// against overlapping runs of the same job.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc is a unit of scheduled work. Errors are logged, never
// propagated to the caller (spec.md §7).
type JobFunc func(ctx context.Context) error

// Metrics records scheduled job executions.
type Metrics interface {
	RecordSchedulerRun(job string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSchedulerRun(string) {}

type scheduledJob struct {
	name     string
	interval time.Duration
	fn       JobFunc
	lastRun  time.Time
	running  bool
}

// Scheduler polls at a fixed tick and fires any job whose interval has
// elapsed, skipping a job that is already mid-run so invocations of the
// same job are never reordered relative to themselves.
type Scheduler struct {
	tick    time.Duration
	mu      sync.Mutex
	jobs    []*scheduledJob
	metrics Metrics
	log     *zap.SugaredLogger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithMetrics attaches a Metrics sink (e.g. metrics/prom.Adapter).
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithTick overrides the poll interval (default 1s, per spec).
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// New constructs a Scheduler. Call RegisterJob to add work, then Start.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:    time.Second,
		metrics: noopMetrics{},
		log:     zap.NewNop().Sugar(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterJob adds a named job fired every interval. Must be called
// before Start.
func (s *Scheduler) RegisterJob(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{name: name, interval: interval, fn: fn})
}

// Start launches the poll loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the poll loop to exit and waits for it to finish. Any
// job already running is allowed to complete.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	now := time.Now()
	s.mu.Lock()
	for _, j := range s.jobs {
		j.lastRun = now
	}
	s.mu.Unlock()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.pollOnce(now)
		}
	}
}

func (s *Scheduler) pollOnce(now time.Time) {
	s.mu.Lock()
	due := make([]*scheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.running {
			continue
		}
		if now.Sub(j.lastRun) >= j.interval {
			j.running = true
			j.lastRun = now
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		go s.runJob(j)
	}
}

func (s *Scheduler) runJob(j *scheduledJob) {
	defer func() {
		s.mu.Lock()
		j.running = false
		s.mu.Unlock()
	}()

	s.log.Debugw("scheduler: job starting", "job", j.name)
	if err := j.fn(context.Background()); err != nil {
		s.log.Warnw("scheduler: job failed", "job", j.name, "error", err)
	}
	s.metrics.RecordSchedulerRun(j.name)
}
