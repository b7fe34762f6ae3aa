// Package prom adapts the engine/queue/scheduler observability hooks to
// Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lunarcache/lunardb/engine"
)

// Adapter implements engine.Metrics and exports Prometheus counters and
// gauges. Safe for concurrent use; all Prometheus metric types are
// goroutine-safe.
type Adapter struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	evicts         *prometheus.CounterVec
	sizeEnt        prometheus.Gauge
	providerErrors prometheus.Counter

	QueueDepth   prometheus.Gauge
	QueueActive  prometheus.Gauge
	SchedulerRun *prometheus.CounterVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "hits_total",
			Help: "Engine GET hits", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Engine GET misses", ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "evictions_total",
			Help: "Engine evictions by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "size_entries",
			Help: "Number of resident entries", ConstLabels: constLabels,
		}),
		providerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "provider_errors_total",
			Help: "Provider write-through/read-fallback failures", ConstLabels: constLabels,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "queue_depth",
			Help: "Task queue pending job count", ConstLabels: constLabels,
		}),
		QueueActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "queue_active_workers",
			Help: "Task queue workers currently running a job", ConstLabels: constLabels,
		}),
		SchedulerRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "scheduler_runs_total",
			Help: "Scheduled job executions by job name", ConstLabels: constLabels,
		}, []string{"job"}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.providerErrors,
		a.QueueDepth, a.QueueActive, a.SchedulerRun)
	return a
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(r engine.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

func (a *Adapter) ProviderError() {
	a.providerErrors.Inc()
}

// SetQueueDepth reports the task queue's current pending job count.
func (a *Adapter) SetQueueDepth(n int) { a.QueueDepth.Set(float64(n)) }

// SetQueueActive reports the task queue's current active worker count.
func (a *Adapter) SetQueueActive(n int) { a.QueueActive.Set(float64(n)) }

// RecordSchedulerRun increments the run counter for a named scheduled job.
func (a *Adapter) RecordSchedulerRun(job string) { a.SchedulerRun.WithLabelValues(job).Inc() }

func reason(r engine.EvictReason) string {
	switch r {
	case engine.EvictTTL:
		return "ttl"
	case engine.EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Compile-time check: ensure Adapter implements engine.Metrics.
var _ engine.Metrics = (*Adapter)(nil)
