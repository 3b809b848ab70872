package replication

import (
	"fmt"
	"strings"
)

// Consistency is the per-request number of replicas that must answer.
type Consistency int

const (
	One Consistency = iota + 1
	Quorum
	All
)

func (c Consistency) String() string {
	switch c {
	case One:
		return "one"
	case Quorum:
		return "quorum"
	case All:
		return "all"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

// ParseConsistency parses a level name case-insensitively. An empty name
// yields fallback.
func ParseConsistency(s string, fallback Consistency) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "one":
		return One, nil
	case "quorum":
		return Quorum, nil
	case "all":
		return All, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidConsistency, s)
	}
}

// Required returns how many replicas must answer for level, given the
// replication factor n and the size of the replica set actually found.
func Required(level Consistency, n, replicaCount int) int {
	switch level {
	case One:
		return 1
	case Quorum:
		return n/2 + 1
	case All:
		return replicaCount
	default:
		return n/2 + 1
	}
}
