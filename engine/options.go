package engine

import (
	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/provider"
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures an Engine. Zero values are safe; New applies
// defaults for Metrics, Clock, and Logger.
type Options struct {
	// Capacity is the maximum number of live entries this engine holds.
	// Must be > 0.
	Capacity int

	// Provider, if set, is consulted on local Get misses and kept in
	// sync on every successful write/delete. Best-effort: failures are
	// logged, never rolled back.
	Provider provider.Provider

	// Metrics receives Hit/Miss/Evict/Size/ProviderError signals.
	// Nil => NoopMetrics.
	Metrics Metrics

	// Clock overrides the time source (tests). Nil => a monotonic clock
	// scaled to UnixNano.
	Clock Clock

	// Logger receives structured logs for evictions and provider
	// failures. Nil => zap.NewNop().
	Logger *zap.SugaredLogger
}

func (o *Options) withDefaults() {
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}
