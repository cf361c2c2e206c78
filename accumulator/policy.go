// ABOUTME: Accumulation policies and report modes, plus their text forms for configuration.
// ABOUTME: Multiset keeps every contribution; Distinct keeps each value once.

package accumulator

import (
	"fmt"
	"strings"
)

// Policy decides how repeated contributions under one key are counted.
type Policy int

const (
	// Multiset keeps every contribution, so N identical values count N
	// times toward quorum.
	Multiset Policy = iota
	// Distinct keeps each value once; quorum counts distinct values.
	Distinct
)

func (p Policy) String() string {
	switch p {
	case Multiset:
		return "multiset"
	case Distinct:
		return "distinct"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "multiset" or "distinct" ("set" is accepted as an alias).
// An empty string selects Multiset.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "multiset":
		return Multiset, nil
	case "distinct", "set":
		return Distinct, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, s)
	}
}

// ReportMode decides which Add calls hand back a snapshot once quorum holds.
type ReportMode int

const (
	// ReportEvery returns a snapshot from every Add while the key is at or
	// above quorum.
	ReportEvery ReportMode = iota
	// ReportOnCrossing returns a snapshot only from the Add that takes the
	// key from below quorum to at or above it. A key pushed over quorum by
	// a lowered threshold has no such Add and is never reported.
	ReportOnCrossing
)

func (m ReportMode) String() string {
	switch m {
	case ReportEvery:
		return "every"
	case ReportOnCrossing:
		return "crossing"
	default:
		return fmt.Sprintf("ReportMode(%d)", int(m))
	}
}

// ParseReportMode parses "every" or "crossing". An empty string selects
// ReportEvery.
func ParseReportMode(s string) (ReportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every":
		return ReportEvery, nil
	case "crossing", "once":
		return ReportOnCrossing, nil
	default:
		return 0, fmt.Errorf("%w: unknown report mode %q", ErrInvalidConfig, s)
	}
}
