// ABOUTME: Quorum accumulator collecting contributed values per key in a bounded cache.
// ABOUTME: Reports the accumulated values once a key holds at least quorum of them.

package accumulator

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-accumulator/cache"
)

// ErrInvalidConfig indicates a configuration that cannot build an Accumulator.
var ErrInvalidConfig = errors.New("invalid accumulator config")

// Config holds the settings for an Accumulator.
type Config struct {
	// Quorum is the number of values at and above which Add reports.
	Quorum int
	// Bound limits the number of keys held, by count or by age.
	Bound cache.Bound
	// Policy selects multiset or distinct accumulation.
	Policy Policy
	// Report selects which Add calls return a snapshot once quorum holds.
	Report ReportMode
	// Logger receives debug events. Defaults to slog.Default().
	Logger *slog.Logger
	// Clock replaces time.Now for duration bounds.
	Clock func() time.Time
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Quorum < 0 {
		return fmt.Errorf("%w: quorum must be non-negative, got %d", ErrInvalidConfig, c.Quorum)
	}
	if err := c.Bound.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Policy != Multiset && c.Policy != Distinct {
		return fmt.Errorf("%w: unknown policy %s", ErrInvalidConfig, c.Policy)
	}
	if c.Report != ReportEvery && c.Report != ReportOnCrossing {
		return fmt.Errorf("%w: unknown report mode %s", ErrInvalidConfig, c.Report)
	}
	return nil
}

// Accumulator collects values under keys and reports each key's values once
// quorum of them have been contributed. Keys are held in a bounded cache, so
// an idle key can be evicted and a later contribution starts it afresh.
//
// Accumulator is not safe for concurrent use; see package sharded for a
// locked variant.
type Accumulator[K cmp.Ordered, V any] struct {
	quorum        int
	policy        Policy
	report        ReportMode
	entries       *cache.Cache[K, collection[V]]
	newCollection func(first V) collection[V]
	onEvict       func(key K, values []V)
	clone         func(V) V
	logger        *slog.Logger
}

// New creates an Accumulator for comparable values using either policy.
func New[K cmp.Ordered, V comparable](cfg Config) (*Accumulator[K, V], error) {
	newCollection := newMultiset[V]
	if cfg.Policy == Distinct {
		newCollection = newDistinct[V]
	}
	return build[K](cfg, newCollection)
}

// NewMultiset creates an Accumulator for values that need not be comparable.
// Only the Multiset policy is available.
func NewMultiset[K cmp.Ordered, V any](cfg Config) (*Accumulator[K, V], error) {
	if cfg.Policy == Distinct {
		return nil, fmt.Errorf("%w: distinct policy requires comparable values", ErrInvalidConfig)
	}
	return build[K](cfg, newMultiset[V])
}

// WithCapacity creates a multiset Accumulator holding at most capacity keys.
func WithCapacity[K cmp.Ordered, V any](quorum, capacity int) (*Accumulator[K, V], error) {
	return NewMultiset[K, V](Config{Quorum: quorum, Bound: cache.Capacity(capacity)})
}

// WithDuration creates a multiset Accumulator whose keys expire after
// duration without a contribution or read.
func WithDuration[K cmp.Ordered, V any](quorum int, duration time.Duration) (*Accumulator[K, V], error) {
	return NewMultiset[K, V](Config{Quorum: quorum, Bound: cache.Duration(duration)})
}

// DistinctWithCapacity is WithCapacity with the Distinct policy.
func DistinctWithCapacity[K cmp.Ordered, V comparable](quorum, capacity int) (*Accumulator[K, V], error) {
	return New[K, V](Config{Quorum: quorum, Bound: cache.Capacity(capacity), Policy: Distinct})
}

// DistinctWithDuration is WithDuration with the Distinct policy.
func DistinctWithDuration[K cmp.Ordered, V comparable](quorum int, duration time.Duration) (*Accumulator[K, V], error) {
	return New[K, V](Config{Quorum: quorum, Bound: cache.Duration(duration), Policy: Distinct})
}

func build[K cmp.Ordered, V any](cfg Config, newCollection func(V) collection[V]) (*Accumulator[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Accumulator[K, V]{
		quorum:        cfg.Quorum,
		policy:        cfg.Policy,
		report:        cfg.Report,
		newCollection: newCollection,
		logger:        logger.With("component", "accumulator"),
	}

	opts := []cache.Option[K, collection[V]]{
		cache.WithEvictHook(a.evicted),
	}
	if cfg.Clock != nil {
		opts = append(opts, cache.WithClock[K, collection[V]](cfg.Clock))
	}

	entries, err := cache.New[K, collection[V]](cfg.Bound, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	a.entries = entries
	return a, nil
}

// Add contributes value under key. When the key holds at least quorum values
// afterwards, Add returns a snapshot of them and true; under ReportOnCrossing
// only the call that reaches quorum does. Contributions made after quorum
// are still accumulated.
//
// Under ReportOnCrossing a key that reaches quorum because SetQuorum lowered
// the threshold is not reported by later calls; poll IsQuorumReached after
// lowering it.
//
// The snapshot is a new slice, but its elements are plain copies of the held
// values unless SetClone installed a deep copy. Without one, mutating the
// contents of a reference-typed element (a []byte, a map, a pointer target)
// also mutates the held value.
//
// The entry is written and evaluated in one cache pass, so the result always
// reflects the contribution just made.
func (a *Accumulator[K, V]) Add(key K, value V) ([]V, bool) {
	created := false
	grew := true
	before := 0
	entry := a.entries.Upsert(key, func(c collection[V], found bool) collection[V] {
		if !found {
			created = true
			return a.newCollection(value)
		}
		before = c.len()
		grew = c.add(value)
		return c
	})

	size := entry.len()
	if size < a.quorum {
		return nil, false
	}
	crossed := created || (grew && before < a.quorum)
	if a.report == ReportOnCrossing && !crossed {
		return nil, false
	}
	if crossed {
		a.logger.Debug("quorum reached", "key", key, "values", size, "quorum", a.quorum)
	}
	return entry.snapshot(a.clone), true
}

// Get returns a snapshot of the values held for key. Elements are copied as
// described for Add.
func (a *Accumulator[K, V]) Get(key K) ([]V, bool) {
	entry, ok := a.entries.Get(key)
	if !ok {
		return nil, false
	}
	return entry.snapshot(a.clone), true
}

// Contains reports whether key currently has an entry. It does not count as
// a use of the key for eviction purposes.
func (a *Accumulator[K, V]) Contains(key K) bool {
	return a.entries.Contains(key)
}

// IsQuorumReached reports whether key exists and holds at least quorum values.
func (a *Accumulator[K, V]) IsQuorumReached(key K) bool {
	entry, ok := a.entries.Get(key)
	if !ok {
		return false
	}
	return entry.len() >= a.quorum
}

// Delete removes key and all of its values.
func (a *Accumulator[K, V]) Delete(key K) {
	a.entries.Remove(key)
}

// CacheSize returns the number of keys held.
func (a *Accumulator[K, V]) CacheSize() int {
	return a.entries.Len()
}

// Keys returns the keys held, in ascending order.
func (a *Accumulator[K, V]) Keys() []K {
	return a.entries.Keys()
}

// Quorum returns the current threshold.
func (a *Accumulator[K, V]) Quorum() int {
	return a.quorum
}

// SetQuorum changes the threshold. It takes effect immediately, including
// for keys that already hold values. Lowering it does not count as a
// crossing for ReportOnCrossing.
func (a *Accumulator[K, V]) SetQuorum(quorum int) error {
	if quorum < 0 {
		return fmt.Errorf("%w: quorum must be non-negative, got %d", ErrInvalidConfig, quorum)
	}
	a.quorum = quorum
	return nil
}

// Policy returns the accumulation policy.
func (a *Accumulator[K, V]) Policy() Policy { return a.policy }

// Bound returns the cache bound.
func (a *Accumulator[K, V]) Bound() cache.Bound { return a.entries.Bound() }

// SetClone registers fn to copy each value placed in a snapshot returned by
// Add and Get or handed to the evict hook. A nil fn restores plain
// assignment.
func (a *Accumulator[K, V]) SetClone(fn func(V) V) {
	a.clone = fn
}

// OnEvict registers fn to receive the values of keys dropped by the bound.
// Delete does not trigger it. fn must not call back into the Accumulator.
func (a *Accumulator[K, V]) OnEvict(fn func(key K, values []V)) {
	a.onEvict = fn
}

func (a *Accumulator[K, V]) evicted(key K, entry collection[V], reason cache.EvictReason) {
	a.logger.Debug("entry evicted", "key", key, "values", entry.len(), "reason", reason.String())
	if a.onEvict != nil {
		a.onEvict(key, entry.snapshot(a.clone))
	}
}
