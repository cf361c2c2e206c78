// ABOUTME: Construction-time bound for the ordered cache: entry count or entry age.
// ABOUTME: Exactly one bound applies for the lifetime of a cache instance.

package cache

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBound indicates a bound that cannot be used to build a cache.
var ErrInvalidBound = errors.New("invalid cache bound")

type boundKind int

const (
	boundUnset boundKind = iota
	boundCapacity
	boundDuration
)

// Bound selects how a Cache limits its contents. Build one with Capacity or
// Duration; the zero value is unset and fails validation.
type Bound struct {
	kind     boundKind
	capacity int
	duration time.Duration
}

// Capacity bounds the cache to at most n entries. When a new key would
// exceed n, the least recently touched entry is evicted first.
//
// A capacity of zero is accepted but retains nothing: every new key is
// evicted as soon as it is inserted.
func Capacity(n int) Bound {
	return Bound{kind: boundCapacity, capacity: n}
}

// Duration bounds every entry to a maximum age of d since it was last
// touched. There is no entry-count ceiling in this mode.
func Duration(d time.Duration) Bound {
	return Bound{kind: boundDuration, duration: d}
}

// IsTimed reports whether the bound is duration based.
func (b Bound) IsTimed() bool { return b.kind == boundDuration }

// MaxEntries returns the capacity, or 0 for a duration bound.
func (b Bound) MaxEntries() int { return b.capacity }

// MaxAge returns the duration, or 0 for a capacity bound.
func (b Bound) MaxAge() time.Duration { return b.duration }

// Validate reports whether the bound can be used to construct a cache.
func (b Bound) Validate() error {
	switch b.kind {
	case boundCapacity:
		if b.capacity < 0 {
			return fmt.Errorf("%w: capacity must be non-negative, got %d", ErrInvalidBound, b.capacity)
		}
	case boundDuration:
		if b.duration <= 0 {
			return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidBound, b.duration)
		}
	default:
		return fmt.Errorf("%w: neither capacity nor duration configured", ErrInvalidBound)
	}
	return nil
}

func (b Bound) String() string {
	switch b.kind {
	case boundCapacity:
		return fmt.Sprintf("capacity(%d)", b.capacity)
	case boundDuration:
		return fmt.Sprintf("duration(%s)", b.duration)
	default:
		return "unset"
	}
}
