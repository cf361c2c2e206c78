// ABOUTME: Bounded ordered cache with least-recently-used eviction and lazy expiry.
// ABOUTME: Keys live in a B-tree; recency is a linked list shared by both bound modes.

package cache

import (
	"cmp"
	"container/list"
	"time"

	"github.com/google/btree"
)

// btreeDegree is the fan-out of the key index.
const btreeDegree = 32

// EvictReason tells an evict hook why an entry left the cache.
type EvictReason int

const (
	// EvictedCapacity means the entry was the least recently touched one
	// when a new key needed room.
	EvictedCapacity EvictReason = iota + 1
	// EvictedExpired means the entry was untouched for longer than the
	// configured duration.
	EvictedExpired
)

func (r EvictReason) String() string {
	switch r {
	case EvictedCapacity:
		return "capacity"
	case EvictedExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// entry is shared between the key index and the recency list.
type entry[K, V any] struct {
	key     K
	value   V
	touched time.Time
	elem    *list.Element
}

// Option configures a Cache at construction time.
type Option[K, V any] func(*Cache[K, V])

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock[K, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictHook registers fn to run after an entry is evicted by the bound.
// Explicit Remove and Clear calls do not trigger it. fn must not call back
// into the cache.
func WithEvictHook[K, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// Cache maps keys to values under a capacity or duration bound. The front of
// the recency list is the most recently touched entry, so the back is always
// the next eviction candidate in capacity mode and the oldest timestamp in
// duration mode.
//
// Cache is not safe for concurrent use; callers serialise access.
type Cache[K, V any] struct {
	bound   Bound
	index   *btree.BTreeG[*entry[K, V]]
	recency *list.List
	probe   entry[K, V]
	now     func() time.Time
	onEvict func(key K, value V, reason EvictReason)
}

// New creates a cache for naturally ordered keys.
func New[K cmp.Ordered, V any](bound Bound, opts ...Option[K, V]) (*Cache[K, V], error) {
	return NewFunc(bound, cmp.Compare[K], opts...)
}

// NewFunc creates a cache whose keys are ordered by compare, which must
// define a total order and return a negative number, zero, or a positive
// number like cmp.Compare.
func NewFunc[K, V any](bound Bound, compare func(a, b K) int, opts ...Option[K, V]) (*Cache[K, V], error) {
	if err := bound.Validate(); err != nil {
		return nil, err
	}

	less := func(a, b *entry[K, V]) bool {
		return compare(a.key, b.key) < 0
	}

	c := &Cache[K, V]{
		bound:   bound,
		index:   btree.NewG(btreeDegree, less),
		recency: list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bound returns the bound the cache was built with.
func (c *Cache[K, V]) Bound() Bound { return c.bound }

// Peek returns the value for key without changing its recency or timestamp.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.purgeExpired()
	e, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Get returns the value for key and marks it as the most recently touched
// entry, refreshing its timestamp.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.purgeExpired()
	e, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.touch(e)
	return e.value, true
}

// Contains reports whether key is present without touching it.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.Peek(key)
	return ok
}

// Insert stores value under key as the most recently touched entry and
// reports whether the key was new.
func (c *Cache[K, V]) Insert(key K, value V) bool {
	created := false
	c.Upsert(key, func(_ V, found bool) V {
		created = !found
		return value
	})
	return created
}

// Upsert performs a read-modify-write on key in a single pass. fn receives
// the current value and whether one existed, and returns the value to store.
// The stored value is returned and the entry becomes the most recently
// touched one. When a new key needs room under a capacity bound, the least
// recently touched entry is evicted in the same call.
func (c *Cache[K, V]) Upsert(key K, fn func(old V, found bool) V) V {
	c.purgeExpired()

	if e, ok := c.lookup(key); ok {
		e.value = fn(e.value, true)
		c.touch(e)
		return e.value
	}

	var zero V
	value := fn(zero, false)

	if !c.bound.IsTimed() {
		if c.bound.capacity == 0 {
			c.evicted(key, value, EvictedCapacity)
			return value
		}
		for c.index.Len() >= c.bound.capacity {
			c.evictBack(EvictedCapacity)
		}
	}

	e := &entry[K, V]{key: key, value: value, touched: c.now()}
	e.elem = c.recency.PushFront(e)
	c.index.ReplaceOrInsert(e)
	return value
}

// Remove deletes key and reports whether it was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.purgeExpired()
	e, ok := c.lookup(key)
	if !ok {
		return false
	}
	c.unlink(e)
	return true
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	c.purgeExpired()
	return c.index.Len()
}

// Keys returns the live keys in ascending key order.
func (c *Cache[K, V]) Keys() []K {
	c.purgeExpired()
	keys := make([]K, 0, c.index.Len())
	c.index.Ascend(func(e *entry[K, V]) bool {
		keys = append(keys, e.key)
		return true
	})
	return keys
}

// Clear drops every entry without running the evict hook.
func (c *Cache[K, V]) Clear() {
	c.index.Clear(false)
	c.recency.Init()
}

func (c *Cache[K, V]) lookup(key K) (*entry[K, V], bool) {
	c.probe.key = key
	e, ok := c.index.Get(&c.probe)
	var zero K
	c.probe.key = zero
	return e, ok
}

func (c *Cache[K, V]) touch(e *entry[K, V]) {
	e.touched = c.now()
	c.recency.MoveToFront(e.elem)
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	c.recency.Remove(e.elem)
	c.index.Delete(e)
}

func (c *Cache[K, V]) evictBack(reason EvictReason) {
	back := c.recency.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry[K, V])
	c.unlink(e)
	c.evicted(e.key, e.value, reason)
}

// purgeExpired drops entries untouched for longer than the duration bound.
// Touching moves an entry to the front, so expired entries are contiguous at
// the back of the recency list.
func (c *Cache[K, V]) purgeExpired() {
	if !c.bound.IsTimed() {
		return
	}
	now := c.now()
	for back := c.recency.Back(); back != nil; back = c.recency.Back() {
		e := back.Value.(*entry[K, V])
		if now.Sub(e.touched) <= c.bound.duration {
			return
		}
		c.unlink(e)
		c.evicted(e.key, e.value, EvictedExpired)
	}
}

func (c *Cache[K, V]) evicted(key K, value V, reason EvictReason) {
	if c.onEvict != nil {
		c.onEvict(key, value, reason)
	}
}
