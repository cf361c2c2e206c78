// ABOUTME: Thread-safe replay filter for contribution IDs.
// ABOUTME: Backed by the bounded cache in either window (duration) or capacity mode.

package dedupe

import (
	"fmt"
	"sync"
	"time"

	"github.com/2389/coven-accumulator/cache"
)

// DefaultCapacity is the number of IDs remembered when neither a window nor a
// capacity is configured.
const DefaultCapacity = 100000

// Filter tracks seen contribution IDs. It is safe for concurrent use.
type Filter struct {
	mu   sync.Mutex
	seen *cache.Cache[string, struct{}]
}

// Option configures a Filter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for window expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a filter. A positive window forgets IDs that have not been
// marked for longer than window and ignores capacity. Otherwise at most
// capacity IDs are kept, dropping the least recently marked first; a zero
// capacity selects DefaultCapacity.
func New(window time.Duration, capacity int, opts ...Option) (*Filter, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	bound := cache.Duration(window)
	if window <= 0 {
		if window < 0 {
			return nil, fmt.Errorf("dedupe window must be non-negative, got %s", window)
		}
		if capacity == 0 {
			capacity = DefaultCapacity
		}
		bound = cache.Capacity(capacity)
	}

	seen, err := cache.New(bound, cache.WithClock[string, struct{}](o.now))
	if err != nil {
		return nil, fmt.Errorf("creating dedupe filter: %w", err)
	}
	return &Filter{seen: seen}, nil
}

// Check reports whether id has been seen and not yet forgotten.
func (f *Filter) Check(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen.Contains(id)
}

// CheckAndMark atomically checks id and marks it if it was not seen.
// Returns true if id was already seen (a replay). A replay does not refresh
// the original mark.
func (f *Filter) CheckAndMark(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.Contains(id) {
		return true
	}
	f.seen.Insert(id, struct{}{})
	return false
}

// Mark records id as seen, refreshing it if already present.
func (f *Filter) Mark(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen.Insert(id, struct{}{})
}

// Len returns the number of IDs currently remembered.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen.Len()
}

// Bound describes how the filter forgets IDs.
func (f *Filter) Bound() cache.Bound {
	return f.seen.Bound()
}
