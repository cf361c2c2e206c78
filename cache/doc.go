// Package cache provides a bounded, ordered key-value cache.
//
// # Bounds
//
// Every cache is built with exactly one [Bound]:
//
//   - [Capacity]: at most n entries; inserting a new key into a full cache
//     evicts the least recently touched entry in the same call.
//   - [Duration]: every entry lives for at most d since it was last touched;
//     expired entries are purged lazily before the next read or write.
//
// # Recency
//
// [Cache.Get], [Cache.Insert] and [Cache.Upsert] touch an entry: it becomes
// the most recently used one and its timestamp is refreshed. [Cache.Peek]
// and [Cache.Contains] read without touching.
//
//	c, err := cache.New[string, int](cache.Capacity(2))
//	if err != nil {
//	    return err
//	}
//	c.Insert("a", 1)
//	c.Insert("b", 2)
//	c.Get("a")       // promote "a"
//	c.Insert("c", 3) // evicts "b"
//
// # Ordering
//
// Keys are indexed in a B-tree, so [Cache.Keys] returns them in ascending
// order. Use [NewFunc] for key types ordered by a comparator.
//
// A Cache is not safe for concurrent use.
package cache
