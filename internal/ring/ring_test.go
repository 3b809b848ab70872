package ring

import (
	"fmt"
	"testing"
)

func threeNodes() []Node {
	return []Node{
		{ID: "node1", Addr: "127.0.0.1:50051"},
		{ID: "node2", Addr: "127.0.0.1:50052"},
		{ID: "node3", Addr: "127.0.0.1:50053"},
	}
}

func TestRing_Owner(t *testing.T) {
	ring := New(threeNodes(), 1)

	// Same key always maps to same node
	key := "test-key-123"
	node1, found1 := ring.Owner(key)
	if !found1 {
		t.Fatal("Expected to find an owner")
	}

	node2, found2 := ring.Owner(key)
	if !found2 {
		t.Fatal("Expected to find an owner")
	}

	if node1.ID != node2.ID {
		t.Errorf("Determinism failed: same key mapped to different nodes: %s vs %s", node1.ID, node2.ID)
	}
}

func TestRing_PositionOf(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	if got, want := PositionOf(""), uint64(0xd41d8cd98f00b204); got != want {
		t.Errorf("PositionOf(\"\") = %x, want %x", got, want)
	}
	if PositionOf("node1") != PositionOf("node1") {
		t.Error("PositionOf is not deterministic")
	}
	if PositionOf("node1") == PositionOf("node2") {
		t.Error("Expected distinct positions for distinct ids")
	}
}

func TestRing_Distribution(t *testing.T) {
	ring := New(threeNodes(), 64)

	distribution := make(map[string]int)
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, found := ring.Owner(key)
		if !found {
			t.Fatalf("Expected to find node for key %s", key)
		}
		distribution[node.ID]++
	}

	if len(distribution) != 3 {
		t.Errorf("Expected 3 nodes to have keys, got %d", len(distribution))
	}

	for nodeID, count := range distribution {
		percentage := float64(count) / float64(numKeys) * 100
		if percentage > 90 {
			t.Errorf("Node %s has %.2f%% of keys (too high)", nodeID, percentage)
		}
	}
}

func TestRing_With(t *testing.T) {
	ring := New([]Node{{ID: "node1", Addr: "127.0.0.1:50051"}}, 1)

	grown := ring.With(Node{ID: "node2", Addr: "127.0.0.1:50052"})

	if ring.Len() != 1 {
		t.Errorf("Original ring mutated: expected 1 node, got %d", ring.Len())
	}
	if grown.Len() != 2 {
		t.Errorf("Expected 2 nodes, got %d", grown.Len())
	}
	if !grown.Contains("node1") || !grown.Contains("node2") {
		t.Error("Expected both node1 and node2 in ring")
	}
}

func TestRing_EmptyRing(t *testing.T) {
	ring := New(nil, 1)
	node, found := ring.Owner("any-key")
	if found {
		t.Error("Expected no node found for empty ring")
	}
	if node.ID != "" {
		t.Error("Expected empty node for empty ring")
	}
	if got := ring.ReplicaSet("any-key", 3); len(got) != 0 {
		t.Errorf("Expected empty replica set, got %v", got)
	}

	var nilRing *Ring
	if got := nilRing.ReplicaSet("any-key", 3); len(got) != 0 {
		t.Errorf("Expected empty replica set from nil ring, got %v", got)
	}
}

func TestRing_ReplicaSet(t *testing.T) {
	ring := New(threeNodes(), 1)

	key := "test-key"
	set := ring.ReplicaSet(key, 3)

	if len(set) != 3 {
		t.Errorf("Expected replica set of length 3, got %d", len(set))
	}

	seen := make(map[string]bool)
	for _, node := range set {
		if seen[node.ID] {
			t.Errorf("Duplicate node %s in replica set", node.ID)
		}
		seen[node.ID] = true
	}

	// First node should be the owner
	owner, _ := ring.Owner(key)
	if set[0].ID != owner.ID {
		t.Errorf("First node in replica set should be owner: got %s, expected %s", set[0].ID, owner.ID)
	}
}

func TestRing_ReplicaSetPartial(t *testing.T) {
	ring := New([]Node{
		{ID: "node1", Addr: "127.0.0.1:50051"},
		{ID: "node2", Addr: "127.0.0.1:50052"},
	}, 1)

	// Request more nodes than available
	set := ring.ReplicaSet("key", 5)
	if len(set) != 2 {
		t.Errorf("Expected replica set of length 2 (only 2 nodes), got %d", len(set))
	}

	if got := ring.ReplicaSet("key", 0); len(got) != 0 {
		t.Errorf("Expected empty replica set for n=0, got %d", len(got))
	}
}

func TestRing_ReplicaSetWalksClockwise(t *testing.T) {
	nodes := threeNodes()
	ring := New(nodes, 1)

	// With one position per node the replica set must follow sorted
	// position order starting from the owner.
	positions := ring.Positions()
	byHash := make(map[uint64]string)
	for _, n := range nodes {
		byHash[PositionOf(n.ID)] = n.ID
	}

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("walk-%d", i)
		set := ring.ReplicaSet(key, 3)
		start := -1
		for j, p := range positions {
			if byHash[p] == set[0].ID {
				start = j
			}
		}
		if start < 0 {
			t.Fatalf("owner %s not found on ring", set[0].ID)
		}
		for j := range set {
			want := byHash[positions[(start+j)%len(positions)]]
			if set[j].ID != want {
				t.Errorf("key %s: replica %d = %s, want %s", key, j, set[j].ID, want)
			}
		}
	}
}
