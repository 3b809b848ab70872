// Package it runs whole clusters in one process over in-memory gRPC
// listeners.
package it

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"ringkv/internal/node"
)

const bufSize = 1 << 20

// Options tunes every node started by a Cluster.
type Options struct {
	ReplicationFactor int
	VNodes            int
	RequestTimeout    time.Duration
	ProbeInterval     time.Duration
	SuspectTimeout    time.Duration
	Logger            *zap.Logger
}

// DefaultOptions keeps failure detection fast enough for tests.
func DefaultOptions() Options {
	return Options{
		ReplicationFactor: 3,
		VNodes:            16,
		RequestTimeout:    500 * time.Millisecond,
		ProbeInterval:     100 * time.Millisecond,
		SuspectTimeout:    300 * time.Millisecond,
		Logger:            zap.NewNop(),
	}
}

// Cluster represents a test cluster of nodes.
type Cluster struct {
	opts Options

	mu        sync.Mutex
	nodes     map[string]*node.Node
	listeners map[string]*bufconn.Listener
	serveErrs map[string]chan error
}

// NewCluster creates an empty cluster.
func NewCluster(opts Options) *Cluster {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cluster{
		opts:      opts,
		nodes:     make(map[string]*node.Node),
		listeners: make(map[string]*bufconn.Listener),
		serveErrs: make(map[string]chan error),
	}
}

// Addr returns the in-memory address for a node id.
func Addr(nodeID string) string {
	return nodeID + ".bufconn:7000"
}

func (c *Cluster) dialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		c.mu.Lock()
		lis, ok := c.listeners[addr]
		c.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("no listener at %s", addr)
		}
		return lis.DialContext(ctx)
	})
}

// StartNode starts a node and, when contact is non-empty, joins it through
// the node with that id.
func (c *Cluster) StartNode(ctx context.Context, nodeID, contact string) (*node.Node, error) {
	c.mu.Lock()
	if _, exists := c.nodes[nodeID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("node %s already running", nodeID)
	}
	lis := bufconn.Listen(bufSize)
	c.listeners[Addr(nodeID)] = lis
	c.mu.Unlock()

	var join string
	if contact != "" {
		join = Addr(contact)
	}

	n := node.New(node.Options{
		ID:                nodeID,
		Addr:              Addr(nodeID),
		ReplicationFactor: c.opts.ReplicationFactor,
		VNodes:            c.opts.VNodes,
		RequestTimeout:    c.opts.RequestTimeout,
		ProbeInterval:     c.opts.ProbeInterval,
		SuspectTimeout:    c.opts.SuspectTimeout,
		Join:              join,
		DialOptions:       []grpc.DialOption{c.dialer()},
		Logger:            c.opts.Logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- n.Serve(lis) }()

	c.mu.Lock()
	c.nodes[nodeID] = n
	c.serveErrs[nodeID] = errCh
	c.mu.Unlock()

	if err := n.Start(ctx); err != nil {
		_ = c.KillNode(nodeID)
		return nil, fmt.Errorf("failed to start node %s: %w", nodeID, err)
	}
	if contact != "" {
		if cn := c.GetNode(contact); cn != nil {
			cn.Directory().Wait()
		}
	}
	return n, nil
}

// StartCluster starts count nodes n1..nN; every node after the first joins
// through n1.
func (c *Cluster) StartCluster(ctx context.Context, count int) error {
	for i := 1; i <= count; i++ {
		contact := ""
		if i > 1 {
			contact = "n1"
		}
		if _, err := c.StartNode(ctx, fmt.Sprintf("n%d", i), contact); err != nil {
			c.Stop()
			return err
		}
	}
	return nil
}

// GetNode returns a node by ID.
func (c *Cluster) GetNode(nodeID string) *node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[nodeID]
}

// NodeIDs returns the running node ids, sorted.
func (c *Cluster) NodeIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// KillNode stops a node and removes its listener so peers see dial errors.
func (c *Cluster) KillNode(nodeID string) error {
	c.mu.Lock()
	n, ok := c.nodes[nodeID]
	errCh := c.serveErrs[nodeID]
	delete(c.nodes, nodeID)
	delete(c.serveErrs, nodeID)
	delete(c.listeners, Addr(nodeID))
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	n.Stop()
	if err := <-errCh; err != nil {
		return fmt.Errorf("node %s serve: %w", nodeID, err)
	}
	return nil
}

// Stop stops all nodes in the cluster.
func (c *Cluster) Stop() {
	for _, id := range c.NodeIDs() {
		_ = c.KillNode(id)
	}
}
