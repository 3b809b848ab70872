package clock

import (
	"fmt"
	"sync"
	"time"
)

// Timestamp orders writes. Time is compared first; Origin breaks ties.
type Timestamp struct {
	Time   int64
	Origin string
}

// IsZero reports whether ts is the zero value.
func (ts Timestamp) IsZero() bool {
	return ts.Time == 0 && ts.Origin == ""
}

// CompareResult represents the result of comparing two timestamps.
type CompareResult int

const (
	// Before indicates this timestamp orders before the other.
	Before CompareResult = iota
	// After indicates this timestamp orders after the other.
	After
	// Equal indicates the timestamps are identical.
	Equal
)

// Compare returns the order of ts relative to other.
func (ts Timestamp) Compare(other Timestamp) CompareResult {
	switch {
	case ts.Time < other.Time:
		return Before
	case ts.Time > other.Time:
		return After
	case ts.Origin < other.Origin:
		return Before
	case ts.Origin > other.Origin:
		return After
	default:
		return Equal
	}
}

// After reports whether ts orders strictly after other.
func (ts Timestamp) After(other Timestamp) bool {
	return ts.Compare(other) == After
}

// String returns a string representation of the timestamp.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%d@%s", ts.Time, ts.Origin)
}

// Max returns the later of a and b.
func Max(a, b Timestamp) Timestamp {
	if b.After(a) {
		return b
	}
	return a
}

// Clock issues strictly increasing timestamps for one node. It is safe for
// concurrent use.
type Clock struct {
	mu     sync.Mutex
	origin string
	last   int64
	wall   func() int64
}

// New creates a clock for the given node ID backed by the system clock.
func New(origin string) *Clock {
	return NewWithSource(origin, func() int64 { return time.Now().UnixNano() })
}

// NewWithSource creates a clock that reads wall time from source.
func NewWithSource(origin string, source func() int64) *Clock {
	return &Clock{origin: origin, wall: source}
}

// Origin returns the node ID stamped on every timestamp.
func (c *Clock) Origin() string {
	return c.origin
}

// Now returns a timestamp strictly greater than any previously issued or
// observed by this clock.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return Timestamp{Time: now, Origin: c.origin}
}

// Observe advances the clock past a timestamp seen from another node so
// later local writes order after it.
func (c *Clock) Observe(ts Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts.Time > c.last {
		c.last = ts.Time
	}
}
