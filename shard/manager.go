// Package shard implements the Shard Manager (C4): a fixed-width
// partitioning of the key space across N engines, with online
// re-sharding that preserves all data.
package shard

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/internal/util"
)

// EngineFactory builds a fresh Engine with the given per-shard capacity.
// The manager calls it once per shard, both at construction and on every
// Rebalance.
type EngineFactory func(capacity int) *engine.Engine

// Manager partitions keys across a vector of engines. Reads and writes
// against different shards proceed independently; Rebalance takes
// exclusive access to the whole shard vector.
type Manager struct {
	mu       sync.RWMutex
	engines  []*engine.Engine
	capacity int // total capacity, split evenly across shards
	newFn    EngineFactory
	log      *zap.SugaredLogger
}

// New constructs a Manager with k shards, each built by factory with a
// capacity of ceil(totalCapacity/k).
func New(k int, totalCapacity int, factory EngineFactory, log *zap.SugaredLogger) *Manager {
	if k <= 0 {
		panic("shard: k must be > 0")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Manager{capacity: totalCapacity, newFn: factory, log: log}
	m.engines = makeEngines(k, totalCapacity, factory)
	return m
}

func makeEngines(k, totalCapacity int, factory EngineFactory) []*engine.Engine {
	perShard := (totalCapacity + k - 1) / k
	if perShard < 1 {
		perShard = 1
	}
	out := make([]*engine.Engine, k)
	for i := range out {
		out[i] = factory(perShard)
	}
	return out
}

// GetShardCount returns the current number of shards.
func (m *Manager) GetShardCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// GetShardIndex returns which shard a key currently hashes to.
func (m *Manager) GetShardIndex(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexLocked(key)
}

func (m *Manager) indexLocked(key string) int {
	h := util.Fnv64a(key)
	return util.ShardIndex(h, len(m.engines))
}

func (m *Manager) engineFor(key string) *engine.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[m.indexLocked(key)]
}

// GetTotalKeyCount sums Size() across every shard.
func (m *Manager) GetTotalKeyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, e := range m.engines {
		total += e.Size()
	}
	return total
}

// --- forwarding operations: same signatures as engine.Engine ---

func (m *Manager) Set(key, value string, ttlSeconds int64) {
	m.engineFor(key).Set(key, value, ttlSeconds)
}

func (m *Manager) Get(key string) (string, bool) {
	return m.engineFor(key).Get(key)
}

func (m *Manager) Del(key string) bool {
	return m.engineFor(key).Del(key)
}

func (m *Manager) Clear() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.engines {
		e.Clear()
	}
}

func (m *Manager) Size() int { return m.GetTotalKeyCount() }

func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, e := range m.engines {
		out = append(out, e.Keys()...)
	}
	return out
}

func (m *Manager) MSet(pairs [][2]string) {
	for _, kv := range pairs {
		m.Set(kv[0], kv[1], 0)
	}
}

func (m *Manager) MGet(keys []string) []*string {
	out := make([]*string, len(keys))
	for i, k := range keys {
		if v, ok := m.Get(k); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out
}

func (m *Manager) LPush(key, value string) error { return m.engineFor(key).LPush(key, value) }
func (m *Manager) RPush(key, value string) error { return m.engineFor(key).RPush(key, value) }

func (m *Manager) LPop(key string) (string, bool, error) { return m.engineFor(key).LPop(key) }
func (m *Manager) RPop(key string) (string, bool, error) { return m.engineFor(key).RPop(key) }

func (m *Manager) LRange(key string, start, stop int) ([]string, error) {
	return m.engineFor(key).LRange(key, start, stop)
}

func (m *Manager) LLen(key string) (int, error) { return m.engineFor(key).LLen(key) }

// CleanupExpired sweeps every shard and returns the total number of
// entries removed.
func (m *Manager) CleanupExpired() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, e := range m.engines {
		total += e.CleanupExpired()
	}
	return total
}

// ForEach invokes fn for every live string (key, value) pair across all
// shards, used by the snapshot writer.
func (m *Manager) ForEach(fn func(key, value string)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.engines {
		e.ForEach(fn)
	}
}

// snapshotPair is one drained (key, value) record collected during
// Rebalance's drain phase.
type snapshotPair struct {
	key   string
	value string
}

// Rebalance atomically transitions the manager to newK shards. All live
// string/list data survives: list entries are preserved by re-running
// their pushes against the new home shard so O(1) push/pop semantics and
// element order are unaffected.
//
// No other operation may observe a torn state: the whole operation runs
// under the manager's write lock, and the drain phase (reading every old
// shard) is fanned out with an errgroup since each old shard is read
// independently before any new shard exists.
func (m *Manager) Rebalance(newK int) error {
	if newK <= 0 {
		panic("shard: newK must be > 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldEngines := m.engines
	type drained struct {
		strings []snapshotPair
		lists   map[string][]string
	}
	results := make([]drained, len(oldEngines))

	g, _ := errgroup.WithContext(context.Background())
	for i, e := range oldEngines {
		i, e := i, e
		g.Go(func() error {
			var d drained
			d.lists = make(map[string][]string)
			e.ForEach(func(k, v string) {
				d.strings = append(d.strings, snapshotPair{key: k, value: v})
			})
			for _, k := range e.Keys() {
				if n, err := e.LLen(k); err == nil && n > 0 {
					if items, err := e.LRange(k, 0, -1); err == nil {
						d.lists[k] = items
					}
				}
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	newEngines := makeEngines(newK, m.capacity, m.newFn)
	m.engines = newEngines

	for _, d := range results {
		for _, p := range d.strings {
			e := m.engines[m.indexLocked(p.key)]
			e.Set(p.key, p.value, 0)
		}
		for key, items := range d.lists {
			e := m.engines[m.indexLocked(key)]
			for _, v := range items {
				_ = e.RPush(key, v)
			}
		}
	}

	m.log.Infow("shard: rebalanced", "old_shards", len(oldEngines), "new_shards", newK)
	return nil
}
