// Package sharded provides a quorum accumulator that is safe for concurrent
// use.
//
// Keys are spread over a fixed number of shards by an xxhash of the key, and
// each shard is an [accumulator.Accumulator] behind its own mutex, so calls
// for keys on different shards do not contend. A capacity bound is split
// across shards so that the total never exceeds the configured capacity;
// eviction is therefore least-recently-used per shard rather than globally.
package sharded
