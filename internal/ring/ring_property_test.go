package ring

import (
	"fmt"
	"reflect"
	"testing"
)

// TestRing_Property_Determinism tests that same membership produces same replica sets
func TestRing_Property_Determinism(t *testing.T) {
	ring1 := New(threeNodes(), 1)
	ring2 := New(threeNodes(), 1)

	testKeys := []string{"key1", "key2", "key3", "user:123", "test-key", "another-key"}

	for _, key := range testKeys {
		for n := 1; n <= 4; n++ {
			set1 := ring1.ReplicaSet(key, n)
			set2 := ring2.ReplicaSet(key, n)
			again := ring1.ReplicaSet(key, n)

			if !reflect.DeepEqual(set1, set2) {
				t.Errorf("Replica set mismatch for key %s n=%d: %v vs %v", key, n, set1, set2)
			}
			if !reflect.DeepEqual(set1, again) {
				t.Errorf("Repeated call differs for key %s n=%d: %v vs %v", key, n, set1, again)
			}
		}
	}
}

// TestRing_Property_OrderInvariant tests that input order of nodes does not matter
func TestRing_Property_OrderInvariant(t *testing.T) {
	nodes1 := threeNodes()
	nodes2 := []Node{nodes1[2], nodes1[0], nodes1[1]}

	ring1 := New(nodes1, 16)
	ring2 := New(nodes2, 16)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		if got, want := ring2.ReplicaSet(key, 3), ring1.ReplicaSet(key, 3); !reflect.DeepEqual(got, want) {
			t.Errorf("Order changed placement for key %s: %v vs %v", key, got, want)
		}
	}
}

// TestRing_Property_NoDuplicates tests that replica sets never repeat a node,
// including when virtual nodes give one node many positions
func TestRing_Property_NoDuplicates(t *testing.T) {
	for _, vnodes := range []int{1, 8, 128} {
		for size := 1; size <= 5; size++ {
			nodes := make([]Node, size)
			for i := range nodes {
				nodes[i] = Node{ID: fmt.Sprintf("n%d", i), Addr: fmt.Sprintf("127.0.0.1:%d", 7000+i)}
			}
			ring := New(nodes, vnodes)

			for k := 0; k < 100; k++ {
				key := fmt.Sprintf("key-%d", k)
				set := ring.ReplicaSet(key, 3)

				want := 3
				if size < want {
					want = size
				}
				if len(set) != want {
					t.Errorf("vnodes=%d size=%d: expected %d replicas, got %d", vnodes, size, want, len(set))
				}

				seen := make(map[string]bool)
				for _, node := range set {
					if seen[node.ID] {
						t.Errorf("vnodes=%d size=%d: duplicate %s for key %s", vnodes, size, node.ID, key)
					}
					seen[node.ID] = true
				}
			}
		}
	}
}

// TestRing_Property_TieBreakByID tests that two nodes on the same position are
// walked in ascending ID order
func TestRing_Property_TieBreakByID(t *testing.T) {
	r := &Ring{
		vnodesPerNode: 1,
		positions: []position{
			{hash: 20, nodeID: "c"},
			{hash: 10, nodeID: "b"},
			{hash: 10, nodeID: "a"},
		},
		nodes: map[string]Node{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}},
	}
	sortPositions(r.positions)

	want := []string{"a", "b", "c"}
	for i, p := range r.positions {
		if p.nodeID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, p.nodeID, want[i])
		}
	}

	// "x" hashes past every position and wraps onto the tie.
	set := r.ReplicaSet("x", 3)
	if len(set) != 3 {
		t.Fatalf("expected 3 replicas, got %d", len(set))
	}
	if set[0].ID != "a" || set[1].ID != "b" || set[2].ID != "c" {
		t.Errorf("expected [a b c], got %v", set)
	}
}

// TestRing_Property_AllNodesReachable tests that every node appears in some
// replica set when n equals ring size
func TestRing_Property_AllNodesReachable(t *testing.T) {
	ring := New(threeNodes(), 1)
	set := ring.ReplicaSet("anything", 3)
	ids := map[string]bool{}
	for _, n := range set {
		ids[n.ID] = true
	}
	for _, n := range threeNodes() {
		if !ids[n.ID] {
			t.Errorf("node %s missing from full replica set", n.ID)
		}
	}
}
