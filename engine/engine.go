// Package engine implements the per-shard bounded key-value map: C2 in
// the design — string and list entries, TTL expiry, capacity eviction,
// and an optional write-through to a Provider.
package engine

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lunarcache/lunardb/entry"
)

// Engine is a bounded mapping from key to Entry. All exported methods are
// safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	m        map[string]*entry.Entry
	capacity int
	opt      Options

	// sf coalesces concurrent provider-backed Get misses for the same
	// key so only one goroutine actually calls through to the backend.
	sf singleflight.Group
}

// New constructs an Engine with the given options. Capacity must be > 0.
func New(opt Options) *Engine {
	if opt.Capacity <= 0 {
		panic("engine: Capacity must be > 0")
	}
	opt.withDefaults()
	return &Engine{
		m:        make(map[string]*entry.Entry, opt.Capacity),
		capacity: opt.Capacity,
		opt:      opt,
	}
}

// monoBase anchors the default clock: readings are UnixNano-scaled but
// advance with the monotonic clock, so wall-clock steps do not move
// deadlines.
var monoBase = time.Now()

func (e *Engine) now() int64 {
	if e.opt.Clock != nil {
		return e.opt.Clock.NowUnixNano()
	}
	return monoBase.UnixNano() + int64(time.Since(monoBase))
}

func deadline(ttlSeconds int64, now int64) int64 {
	if ttlSeconds <= 0 {
		return 0
	}
	return now + ttlSeconds*int64(time.Second)
}

// --- internals (mu held) ---

// liveLocked reports whether the entry at key is present and unexpired,
// removing it (and syncing the provider) if it has expired.
func (e *Engine) liveLocked(key string) (*entry.Entry, bool) {
	ent, ok := e.m[key]
	if !ok {
		return nil, false
	}
	if ent.Expired(e.now()) {
		e.removeLocked(key, EvictTTL)
		return nil, false
	}
	return ent, true
}

// removeLocked drops key as an eviction (capacity or TTL), recording
// metrics and a debug log line.
func (e *Engine) removeLocked(key string, reason EvictReason) {
	if _, ok := e.m[key]; !ok {
		return
	}
	e.deleteLocked(key)
	e.opt.Metrics.Evict(reason)
	e.opt.Logger.Debugw("engine: evicted entry", "key", key, "reason", reason)
}

// deleteLocked drops key as a plain, requested deletion (DEL, or a list
// becoming empty after a pop), syncing the provider but without touching
// eviction metrics.
func (e *Engine) deleteLocked(key string) {
	delete(e.m, key)
	e.opt.Metrics.Size(len(e.m))
	if e.opt.Provider != nil {
		if err := e.opt.Provider.Del(key); err != nil {
			e.opt.Metrics.ProviderError()
			e.opt.Logger.Warnw("engine: provider delete failed", "key", key, "error", err)
		}
	}
}

// evictOneLocked removes one entry to make room for a write, per the
// "smallest expiry timestamp first" rule (no-TTL entries rank earliest,
// as if their deadline were zero). Ties broken by first-encountered.
func (e *Engine) evictOneLocked() {
	var victim string
	var victimExp int64 = -1
	for k, v := range e.m {
		exp := v.ExpireAt // 0 already sorts first against any positive value
		if victimExp == -1 || exp < victimExp {
			victim = k
			victimExp = exp
			if exp == 0 {
				break // nothing ranks earlier than "no expiry"
			}
		}
	}
	if victimExp != -1 {
		e.removeLocked(victim, EvictCapacity)
	}
}

// ensureRoomLocked evicts if inserting a brand-new key would exceed
// capacity. Overwrites of an existing key never need room.
func (e *Engine) ensureRoomLocked(key string) {
	if _, exists := e.m[key]; exists {
		return
	}
	if len(e.m) >= e.capacity {
		e.evictOneLocked()
	}
}

func (e *Engine) syncProviderSet(key string, ent *entry.Entry) {
	if e.opt.Provider == nil {
		return
	}
	ttl := int64(0)
	if ent.ExpireAt != 0 {
		remaining := ent.ExpireAt - e.now()
		if remaining <= 0 {
			remaining = 0
		}
		ttl = remaining / int64(time.Second)
	}
	if err := e.opt.Provider.Set(key, ent.Serialized(), ttl); err != nil {
		e.opt.Metrics.ProviderError()
		e.opt.Logger.Warnw("engine: provider set failed", "key", key, "error", err)
	}
}

// --- string operations ---

// Set overwrites any existing entry with a string entry. ttlSeconds == 0
// means no expiry.
func (e *Engine) Set(key, value string, ttlSeconds int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setLocked(key, value, ttlSeconds)
}

func (e *Engine) setLocked(key, value string, ttlSeconds int64) {
	e.ensureRoomLocked(key)
	ent := entry.NewString(value, deadline(ttlSeconds, e.now()))
	e.m[key] = ent
	e.opt.Metrics.Size(len(e.m))
	e.syncProviderSet(key, ent)
}

// Get returns the string value for key if present, unexpired, and of
// String variant. On a local miss with a provider attached, the
// provider is consulted and a hit is cached locally (no TTL).
func (e *Engine) Get(key string) (string, bool) {
	e.mu.RLock()
	ent, ok := e.m[key]
	if ok && !ent.Expired(e.now()) {
		if ent.Kind != entry.KindString {
			e.mu.RUnlock()
			return "", false
		}
		v := ent.Str
		e.mu.RUnlock()
		e.opt.Metrics.Hit()
		return v, true
	}
	e.mu.RUnlock()

	// Expired or absent locally: drop it under a write lock if expired,
	// then fall through to the provider.
	e.mu.Lock()
	if ent, ok := e.m[key]; ok && ent.Expired(e.now()) {
		e.removeLocked(key, EvictTTL)
	}
	e.mu.Unlock()

	if e.opt.Provider == nil {
		e.opt.Metrics.Miss()
		return "", false
	}
	return e.getFromProvider(key)
}

// getFromProvider coalesces concurrent misses for the same key into one
// provider round trip via singleflight.
func (e *Engine) getFromProvider(key string) (string, bool) {
	type result struct {
		val string
		ok  bool
	}
	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		val, ok, err := e.opt.Provider.Get(key)
		if err != nil {
			return result{}, err
		}
		if ok {
			e.mu.Lock()
			e.ensureRoomLocked(key)
			e.m[key] = entry.NewString(val, 0)
			e.opt.Metrics.Size(len(e.m))
			e.mu.Unlock()
		}
		return result{val: val, ok: ok}, nil
	})
	if err != nil {
		e.opt.Metrics.ProviderError()
		e.opt.Logger.Warnw("engine: provider get failed", "key", key, "error", err)
		e.opt.Metrics.Miss()
		return "", false
	}
	r := v.(result)
	if r.ok {
		e.opt.Metrics.Hit()
		return r.val, true
	}
	e.opt.Metrics.Miss()
	return "", false
}

// Del removes any entry (string or list). Returns whether something was
// removed.
func (e *Engine) Del(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.m[key]; !ok {
		return false
	}
	e.deleteLocked(key)
	return true
}

// Clear drops all entries. Does not touch the provider.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m = make(map[string]*entry.Entry, e.capacity)
	e.opt.Metrics.Size(0)
}

// Size reports the current number of stored entries. Expired entries
// that have not yet been swept are still counted.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.m)
}

// Keys returns all live keys. Expired entries are swept first (resolves
// spec's open question in favor of "sweep on each KEYS").
func (e *Engine) Keys() []string {
	e.mu.Lock()
	now := e.now()
	for k, v := range e.m {
		if v.Expired(now) {
			e.removeLocked(k, EvictTTL)
		}
	}
	keys := make([]string, 0, len(e.m))
	for k := range e.m {
		keys = append(keys, k)
	}
	e.mu.Unlock()
	return keys
}

// MSet is the batched equivalent of calling Set repeatedly, in order.
func (e *Engine) MSet(pairs [][2]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, kv := range pairs {
		e.setLocked(kv[0], kv[1], 0)
	}
}

// MGet is the batched equivalent of calling Get repeatedly, in order.
func (e *Engine) MGet(keys []string) []*string {
	out := make([]*string, len(keys))
	for i, k := range keys {
		if v, ok := e.Get(k); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out
}

// --- list operations ---

// LPush prepends value to key's list, creating it if absent. Fails with
// ErrWrongType if key holds a string.
func (e *Engine) LPush(key, value string) error {
	return e.push(key, value, true)
}

// RPush appends value to key's list, creating it if absent. Fails with
// ErrWrongType if key holds a string.
func (e *Engine) RPush(key, value string) error {
	return e.push(key, value, false)
}

func (e *Engine) push(key, value string, front bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.liveLocked(key)
	if !ok {
		e.ensureRoomLocked(key)
		ent = entry.NewList(value, 0)
		// NewList seeds one element; if we want it at the tail for
		// RPush semantics on a brand-new key, front vs back of a
		// single-element list is the same element.
		e.m[key] = ent
		e.opt.Metrics.Size(len(e.m))
		e.syncProviderSet(key, ent)
		return nil
	}
	if ent.Kind != entry.KindList {
		return ErrWrongType
	}
	if front {
		ent.List.PushFront(value)
	} else {
		ent.List.PushBack(value)
	}
	e.syncProviderSet(key, ent)
	return nil
}

// LPop removes and returns the head element of key's list. Returns
// (_, false) for an absent key; the entry is removed if the list becomes
// empty. Fails with ErrWrongType if key holds a string.
func (e *Engine) LPop(key string) (string, bool, error) {
	return e.pop(key, true)
}

// RPop removes and returns the tail element of key's list.
func (e *Engine) RPop(key string) (string, bool, error) {
	return e.pop(key, false)
}

func (e *Engine) pop(key string, front bool) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	if ent.Kind != entry.KindList {
		return "", false, ErrWrongType
	}

	var el *list.Element
	if front {
		el = ent.List.Front()
	} else {
		el = ent.List.Back()
	}
	if el == nil {
		return "", false, nil
	}
	v := el.Value.(string)
	ent.List.Remove(el)

	if ent.List.Len() == 0 {
		e.deleteLocked(key)
	} else {
		e.syncProviderSet(key, ent)
	}
	return v, true, nil
}

// LRange returns elements [start, stop] inclusive, with negative indices
// counting from the end. Absent key yields an empty slice.
func (e *Engine) LRange(key string, start, stop int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.m[key]
	if !ok || ent.Expired(e.now()) {
		return nil, nil
	}
	if ent.Kind != entry.KindList {
		return nil, ErrWrongType
	}

	items := ent.ListSlice()
	n := len(items)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start > stop || n == 0 {
		return []string{}, nil
	}
	return items[start : stop+1], nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// LLen returns the length of key's list (0 if absent). Fails with
// ErrWrongType if key holds a string.
func (e *Engine) LLen(key string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.m[key]
	if !ok || ent.Expired(e.now()) {
		return 0, nil
	}
	if ent.Kind != entry.KindList {
		return 0, ErrWrongType
	}
	return ent.List.Len(), nil
}

// CleanupExpired iterates all entries and drops those past their
// deadline, syncing deletes to the provider.
func (e *Engine) CleanupExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	removed := 0
	for k, v := range e.m {
		if v.Expired(now) {
			e.removeLocked(k, EvictTTL)
			removed++
		}
	}
	return removed
}

// ForEach invokes fn for every live, string-valued (key, value) pair, in
// an unspecified order. Used by the snapshot writer. List entries are
// skipped (list values and TTLs are out of scope for the snapshot
// format).
func (e *Engine) ForEach(fn func(key, value string)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	for k, v := range e.m {
		if v.Expired(now) || v.Kind != entry.KindString {
			continue
		}
		fn(k, v.Str)
	}
}

// WithLogger returns the engine's logger for use by callers
// that want consistent structured-log fields (e.g. the shard manager).
func (e *Engine) WithLogger() *zap.SugaredLogger { return e.opt.Logger }
