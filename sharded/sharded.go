// ABOUTME: Concurrency-safe quorum accumulator built from mutex-guarded shards.
// ABOUTME: Shards are selected by xxhash of the key; capacity is divided between them.

package sharded

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/2389/coven-accumulator/accumulator"
	"github.com/2389/coven-accumulator/cache"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 16

type shard[K cmp.Ordered, V any] struct {
	mu  sync.Mutex
	acc *accumulator.Accumulator[K, V]
}

// Accumulator is a quorum accumulator safe for concurrent use. Each shard
// evicts by its own share of the capacity, so with more than one shard a key
// can be evicted while the total is below capacity. One shard keeps exact
// least-recently-used eviction.
type Accumulator[K cmp.Ordered, V any] struct {
	shards []*shard[K, V]
}

// New creates a sharded accumulator for comparable values. A shard count of
// zero selects DefaultShards.
func New[K cmp.Ordered, V comparable](cfg accumulator.Config, shards int) (*Accumulator[K, V], error) {
	return build(cfg, shards, accumulator.New[K, V])
}

// NewMultiset creates a sharded multiset accumulator for values that need
// not be comparable.
func NewMultiset[K cmp.Ordered, V any](cfg accumulator.Config, shards int) (*Accumulator[K, V], error) {
	return build(cfg, shards, accumulator.NewMultiset[K, V])
}

func build[K cmp.Ordered, V any](
	cfg accumulator.Config,
	shards int,
	newShard func(accumulator.Config) (*accumulator.Accumulator[K, V], error),
) (*Accumulator[K, V], error) {
	if shards < 0 {
		return nil, fmt.Errorf("%w: shard count must be non-negative, got %d", accumulator.ErrInvalidConfig, shards)
	}
	if shards == 0 {
		shards = DefaultShards
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bounds := splitBound(cfg.Bound, shards)
	a := &Accumulator[K, V]{shards: make([]*shard[K, V], len(bounds))}
	for i, bound := range bounds {
		shardCfg := cfg
		shardCfg.Bound = bound
		acc, err := newShard(shardCfg)
		if err != nil {
			return nil, fmt.Errorf("creating shard %d: %w", i, err)
		}
		a.shards[i] = &shard[K, V]{acc: acc}
	}
	return a, nil
}

// splitBound divides a capacity bound so the shard capacities sum to the
// original. Fewer shards are used when capacity is smaller than the count.
func splitBound(bound cache.Bound, shards int) []cache.Bound {
	if bound.IsTimed() {
		out := make([]cache.Bound, shards)
		for i := range out {
			out[i] = bound
		}
		return out
	}

	capacity := bound.MaxEntries()
	if capacity < shards {
		shards = max(capacity, 1)
	}
	base, rem := capacity/shards, capacity%shards
	out := make([]cache.Bound, shards)
	for i := range out {
		n := base
		if i < rem {
			n++
		}
		out[i] = cache.Capacity(n)
	}
	return out
}

func (a *Accumulator[K, V]) shardFor(key K) *shard[K, V] {
	if len(a.shards) == 1 {
		return a.shards[0]
	}
	var h uint64
	switch k := any(key).(type) {
	case string:
		h = xxhash.Sum64String(k)
	default:
		h = xxhash.Sum64(fmt.Append(nil, k))
	}
	return a.shards[h%uint64(len(a.shards))]
}

// Shards returns the number of shards in use.
func (a *Accumulator[K, V]) Shards() int { return len(a.shards) }

// Add contributes value under key; see accumulator.Accumulator.Add.
func (a *Accumulator[K, V]) Add(key K, value V) ([]V, bool) {
	s := a.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Add(key, value)
}

// Get returns a snapshot of the values held for key.
func (a *Accumulator[K, V]) Get(key K) ([]V, bool) {
	s := a.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Get(key)
}

// Contains reports whether key currently has an entry.
func (a *Accumulator[K, V]) Contains(key K) bool {
	s := a.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Contains(key)
}

// IsQuorumReached reports whether key exists and holds at least quorum values.
func (a *Accumulator[K, V]) IsQuorumReached(key K) bool {
	s := a.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.IsQuorumReached(key)
}

// Delete removes key and all of its values.
func (a *Accumulator[K, V]) Delete(key K) {
	s := a.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acc.Delete(key)
}

// CacheSize returns the number of keys held across all shards.
func (a *Accumulator[K, V]) CacheSize() int {
	total := 0
	for _, s := range a.shards {
		s.mu.Lock()
		total += s.acc.CacheSize()
		s.mu.Unlock()
	}
	return total
}

// Keys returns the keys held across all shards, in ascending order.
func (a *Accumulator[K, V]) Keys() []K {
	var keys []K
	for _, s := range a.shards {
		s.mu.Lock()
		keys = append(keys, s.acc.Keys()...)
		s.mu.Unlock()
	}
	slices.Sort(keys)
	return keys
}

// Quorum returns the current threshold.
func (a *Accumulator[K, V]) Quorum() int {
	s := a.shards[0]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Quorum()
}

// SetQuorum changes the threshold on every shard.
func (a *Accumulator[K, V]) SetQuorum(quorum int) error {
	if quorum < 0 {
		return fmt.Errorf("%w: quorum must be non-negative, got %d", accumulator.ErrInvalidConfig, quorum)
	}
	for _, s := range a.shards {
		s.mu.Lock()
		err := s.acc.SetQuorum(quorum)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// SetClone registers fn on every shard; see accumulator.Accumulator.SetClone.
func (a *Accumulator[K, V]) SetClone(fn func(V) V) {
	for _, s := range a.shards {
		s.mu.Lock()
		s.acc.SetClone(fn)
		s.mu.Unlock()
	}
}

// OnEvict registers fn on every shard. fn runs with the shard lock held and
// must not call back into the Accumulator.
func (a *Accumulator[K, V]) OnEvict(fn func(key K, values []V)) {
	for _, s := range a.shards {
		s.mu.Lock()
		s.acc.OnEvict(fn)
		s.mu.Unlock()
	}
}
