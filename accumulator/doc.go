// Package accumulator collects contributed values under shared keys and
// reports when enough of them have arrived.
//
// # Overview
//
// Many independent actors may submit partial evidence for one logical item:
// votes, partial responses, fragments. An [Accumulator] keeps, per key, the
// values contributed so far and tells the caller exactly when the key holds
// at least quorum of them, without unbounded memory growth: keys live in a
// bounded [cache.Cache], by entry count or by age.
//
//	acc, err := accumulator.WithCapacity[string, string](2, 1000)
//	if err != nil {
//	    return err
//	}
//	acc.Add("block-7", "sig-a")                   // nil, false
//	values, ok := acc.Add("block-7", "sig-b")     // [sig-a sig-b], true
//
// # Policies
//
//   - [Multiset]: every contribution counts, duplicates included.
//   - [Distinct]: quorum counts distinct values; repeats are merged.
//
// # Reporting
//
// With [ReportEvery] (the default) every Add made while a key is at or above
// quorum returns a fresh snapshot, so callers can keep checking agreement as
// more evidence arrives. [ReportOnCrossing] returns the snapshot only once.
//
// The quorum is read at evaluation time: [Accumulator.SetQuorum] applies to
// existing keys immediately.
//
// An Accumulator is not safe for concurrent use.
package accumulator
