// Package journal records quorum resolutions in SQLite.
//
// Every time a key reaches quorum during an ingest run, a Resolution row is
// appended with the values that formed the quorum. The journal is an audit
// trail only: accumulator state is never restored from it, and a restarted
// run begins with empty entries.
//
// # Schema
//
//	resolutions(id, run_id, key, values_json, quorum, resolved_at)
//
// Timestamps are stored as fixed-width UTC strings so they sort
// lexically. Listing is newest first.
//
// # Usage
//
//	j, err := journal.Open("/var/lib/coven/accumulator.db")
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//
//	err = j.Record(ctx, &journal.Resolution{RunID: runID, Key: key, Values: values, Quorum: 3})
//	recent, err := j.List(ctx, journal.Filter{Key: &key, Limit: 10})
package journal
