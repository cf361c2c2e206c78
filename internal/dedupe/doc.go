// Package dedupe filters replayed contributions so a retried line counts
// toward quorum only once.
//
// A Filter remembers contribution IDs in a bounded cache. With a window it
// forgets an ID once it has gone unmarked for that long; without one it keeps
// the most recently marked IDs up to a fixed count.
package dedupe
