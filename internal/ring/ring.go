package ring

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
	"strconv"
)

// Node represents a physical node in the cluster.
type Node struct {
	ID   string
	Addr string
}

// position is a single point on the ring owned by a node.
type position struct {
	hash   uint64
	nodeID string
}

// Ring is an immutable consistent hashing ring. Build a new Ring to change
// membership; never mutate one that has been handed out.
type Ring struct {
	vnodesPerNode int
	positions     []position
	nodes         map[string]Node // nodeID -> Node
}

// PositionOf maps an identifier onto the ring's 64-bit space using the
// first eight bytes of its MD5 digest.
func PositionOf(id string) uint64 {
	sum := md5.Sum([]byte(id))
	return binary.BigEndian.Uint64(sum[:8])
}

// New builds a ring from the given nodes. Each node owns vnodesPerNode
// positions; values below 1 mean one position per node. Duplicate node IDs
// keep the last address seen.
func New(nodes []Node, vnodesPerNode int) *Ring {
	if vnodesPerNode <= 0 {
		vnodesPerNode = 1
	}

	r := &Ring{
		vnodesPerNode: vnodesPerNode,
		nodes:         make(map[string]Node, len(nodes)),
	}
	for _, node := range nodes {
		r.nodes[node.ID] = node
	}

	r.positions = make([]position, 0, len(r.nodes)*vnodesPerNode)
	for id := range r.nodes {
		for i := 0; i < vnodesPerNode; i++ {
			r.positions = append(r.positions, position{
				hash:   PositionOf(vnodeKey(id, i)),
				nodeID: id,
			})
		}
	}

	sortPositions(r.positions)

	return r
}

// sortPositions orders by hash, then by node ID on equal hashes.
func sortPositions(ps []position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].hash != ps[j].hash {
			return ps[i].hash < ps[j].hash
		}
		return ps[i].nodeID < ps[j].nodeID
	})
}

// vnodeKey names the i-th position of a node. The first position hashes the
// bare node ID.
func vnodeKey(nodeID string, i int) string {
	if i == 0 {
		return nodeID
	}
	return nodeID + "#" + strconv.Itoa(i)
}

// With returns a new ring that additionally contains node.
func (r *Ring) With(node Node) *Ring {
	nodes := append(r.Nodes(), node)
	return New(nodes, r.VNodes())
}

// ReplicaSet returns up to n distinct nodes responsible for key, in ring
// order starting at the first position >= hash(key).
func (r *Ring) ReplicaSet(key string, n int) []Node {
	if r == nil || len(r.positions) == 0 || n <= 0 {
		return []Node{}
	}

	keyHash := PositionOf(key)
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].hash >= keyHash
	})

	// Wrap around if keyHash is greater than all positions
	if idx >= len(r.positions) {
		idx = 0
	}

	if n > len(r.nodes) {
		n = len(r.nodes)
	}

	seen := make(map[string]struct{}, n)
	result := make([]Node, 0, n)

	for i := 0; i < len(r.positions) && len(result) < n; i++ {
		nodeID := r.positions[(idx+i)%len(r.positions)].nodeID
		if _, dup := seen[nodeID]; dup {
			continue
		}
		seen[nodeID] = struct{}{}
		result = append(result, r.nodes[nodeID])
	}

	return result
}

// ReplicaSetFor is the functional form of (*Ring).ReplicaSet.
func ReplicaSetFor(key string, r *Ring, n int) []Node {
	return r.ReplicaSet(key, n)
}

// Owner returns the first node of the key's replica set.
func (r *Ring) Owner(key string) (Node, bool) {
	set := r.ReplicaSet(key, 1)
	if len(set) == 0 {
		return Node{}, false
	}
	return set[0], true
}

// Nodes returns all nodes in the ring sorted by ID.
func (r *Ring) Nodes() []Node {
	if r == nil {
		return []Node{}
	}
	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Contains reports whether nodeID owns positions in the ring.
func (r *Ring) Contains(nodeID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.nodes[nodeID]
	return ok
}

// Len returns the number of distinct nodes in the ring.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.nodes)
}

// VNodes returns the number of positions per node.
func (r *Ring) VNodes() int {
	if r == nil {
		return 1
	}
	return r.vnodesPerNode
}

// Positions returns a copy of the sorted position hashes.
func (r *Ring) Positions() []uint64 {
	if r == nil {
		return nil
	}
	out := make([]uint64, len(r.positions))
	for i, p := range r.positions {
		out[i] = p.hash
	}
	return out
}
