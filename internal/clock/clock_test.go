package clock

import (
	"sync"
	"testing"
)

func TestTimestamp_Compare(t *testing.T) {
	tests := []struct {
		name     string
		a        Timestamp
		b        Timestamp
		expected CompareResult
	}{
		{
			name:     "equal timestamps",
			a:        Timestamp{Time: 5, Origin: "node1"},
			b:        Timestamp{Time: 5, Origin: "node1"},
			expected: Equal,
		},
		{
			name:     "earlier time",
			a:        Timestamp{Time: 4, Origin: "node9"},
			b:        Timestamp{Time: 5, Origin: "node1"},
			expected: Before,
		},
		{
			name:     "later time",
			a:        Timestamp{Time: 6, Origin: "node1"},
			b:        Timestamp{Time: 5, Origin: "node9"},
			expected: After,
		},
		{
			name:     "tie broken by origin (lower)",
			a:        Timestamp{Time: 5, Origin: "node1"},
			b:        Timestamp{Time: 5, Origin: "node2"},
			expected: Before,
		},
		{
			name:     "tie broken by origin (higher)",
			a:        Timestamp{Time: 5, Origin: "node2"},
			b:        Timestamp{Time: 5, Origin: "node1"},
			expected: After,
		},
		{
			name:     "zero before anything",
			a:        Timestamp{},
			b:        Timestamp{Time: 1},
			expected: Before,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.a.Compare(tt.b); result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestTimestamp_CompareAntisymmetric(t *testing.T) {
	stamps := []Timestamp{
		{}, {Time: 1, Origin: "a"}, {Time: 1, Origin: "b"}, {Time: 2, Origin: "a"},
	}
	for _, a := range stamps {
		for _, b := range stamps {
			ab, ba := a.Compare(b), b.Compare(a)
			switch ab {
			case Equal:
				if ba != Equal {
					t.Errorf("%v vs %v: Equal one way, %v the other", a, b, ba)
				}
			case Before:
				if ba != After {
					t.Errorf("%v vs %v: Before one way, %v the other", a, b, ba)
				}
			case After:
				if ba != Before {
					t.Errorf("%v vs %v: After one way, %v the other", a, b, ba)
				}
			}
		}
	}
}

func TestMax(t *testing.T) {
	a := Timestamp{Time: 1, Origin: "b"}
	b := Timestamp{Time: 1, Origin: "c"}
	if got := Max(a, b); got != b {
		t.Errorf("Max(a, b) = %v, want %v", got, b)
	}
	if got := Max(b, a); got != b {
		t.Errorf("Max(b, a) = %v, want %v", got, b)
	}
}

func TestClock_NowMonotonic(t *testing.T) {
	// Wall clock stuck at the same value.
	c := NewWithSource("node1", func() int64 { return 100 })

	first := c.Now()
	second := c.Now()
	third := c.Now()

	if first.Time != 100 {
		t.Errorf("Expected first timestamp 100, got %d", first.Time)
	}
	if !second.After(first) || !third.After(second) {
		t.Errorf("Expected strictly increasing timestamps: %v %v %v", first, second, third)
	}
	if first.Origin != "node1" {
		t.Errorf("Expected origin node1, got %s", first.Origin)
	}
}

func TestClock_WallGoesBackwards(t *testing.T) {
	wall := int64(1000)
	c := NewWithSource("node1", func() int64 { return wall })

	before := c.Now()
	wall = 10
	after := c.Now()

	if !after.After(before) {
		t.Errorf("Expected %v after %v despite wall clock regression", after, before)
	}
}

func TestClock_Observe(t *testing.T) {
	c := NewWithSource("node1", func() int64 { return 10 })

	c.Observe(Timestamp{Time: 500, Origin: "node2"})
	ts := c.Now()

	if ts.Time <= 500 {
		t.Errorf("Expected time past observed 500, got %d", ts.Time)
	}

	// Observing an older timestamp is a no-op.
	c.Observe(Timestamp{Time: 1, Origin: "node3"})
	if next := c.Now(); !next.After(ts) {
		t.Errorf("Expected %v after %v", next, ts)
	}
}

func TestClock_Concurrent(t *testing.T) {
	c := New("node1")

	const workers = 8
	const per = 200

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*per)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				ts := c.Now()
				mu.Lock()
				if seen[ts.Time] {
					t.Errorf("duplicate timestamp %d", ts.Time)
				}
				seen[ts.Time] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
