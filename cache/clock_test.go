// ABOUTME: Manually advanced clock for duration-bound cache tests.
// ABOUTME: Replaces sleeps so expiry boundaries can be hit exactly.

package cache

import "time"

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }
