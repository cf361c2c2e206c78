// Package ingest feeds line-oriented contributions into a quorum accumulator.
//
// Each input line has the form
//
//	key value [contribution-id]
//
// separated by whitespace. Blank lines and lines starting with # are skipped.
// A line with a contribution ID that was already seen is a replay and is
// dropped before it reaches the accumulator. Lines without an ID are never
// treated as replays and receive a generated ID for logging.
//
// Contributions are spread over workers by key, so all lines for one key
// are applied in input order. Every reported resolution is handed to a Sink.
package ingest
