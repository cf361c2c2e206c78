// Package config handles configuration loading for coven-accumulator.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Files ending in .toml are decoded as TOML; anything else is
// YAML. Every problem found during validation is reported at once.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	journal:
//	  path: "${XDG_DATA_HOME}/coven/accumulator.db"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Accumulator (exactly one of capacity or duration):
//
//	accumulator:
//	  quorum: 3
//	  capacity: 10000     # or duration: "5m"
//	  policy: "distinct"  # multiset, distinct
//	  report: "every"     # every, crossing
//	  shards: 16
//
// Ingest replay filter:
//
//	ingest:
//	  dedupe_window: "10m"
//	  dedupe_capacity: 100000  # only when dedupe_window is unset
//	  workers: 4
//
// Resolution journal:
//
//	journal:
//	  enabled: true
//	  path: "/var/lib/coven/accumulator.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/coven/accumulator.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	acc, err := sharded.New[string, string](cfg.ToAccumulator(logger), cfg.Accumulator.Shards)
package config
