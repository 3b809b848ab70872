package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"ringkv/internal/membership"
	"ringkv/internal/record"
	"ringkv/internal/replication"
)

// ClientManager manages gRPC connections to peer nodes.
type ClientManager struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

// NewClientManager creates a new client manager. Extra options are
// appended to the defaults.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
		opts:  append(defaults, opts...),
	}
}

// Conn returns a connection for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) Conn(addr string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	conn, exists := cm.conns[addr]
	cm.mu.RUnlock()

	if exists {
		return conn, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if conn, exists := cm.conns[addr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient("passthrough:///"+addr, cm.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}

	cm.conns[addr] = conn
	return conn, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}

// Client calls the peer service. It satisfies replication.PeerClient and
// membership.Transport.
type Client struct {
	cm      *ClientManager
	timeout time.Duration
}

// NewClient creates a client that bounds each call by timeout unless the
// caller's context expires sooner.
func NewClient(cm *ClientManager, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{cm: cm, timeout: timeout}
}

func (c *Client) invoke(ctx context.Context, addr, method string, in, out message) error {
	conn, err := c.cm.Conn(addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", replication.ErrPeerUnreachable, addr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return fmt.Errorf("%w: %s: %v", replication.ErrPeerUnreachable, addr, err)
	}
	return nil
}

// Apply sends a replica write to addr.
func (c *Client) Apply(ctx context.Context, addr string, rec record.Record, meta replication.Meta) error {
	in := &ApplyRequest{Record: recordToWire(rec), RequestID: meta.RequestID, Coordinator: meta.Coordinator}
	return c.invoke(ctx, addr, applyMethod, in, new(ApplyResponse))
}

// Get fetches addr's version of key.
func (c *Client) Get(ctx context.Context, addr, key string, meta replication.Meta) (record.Record, bool, error) {
	in := &GetRequest{Key: key, RequestID: meta.RequestID, Coordinator: meta.Coordinator}
	out := new(GetResponse)
	if err := c.invoke(ctx, addr, getMethod, in, out); err != nil {
		return record.Record{}, false, err
	}
	if !out.Found {
		return record.Record{}, false, nil
	}
	return recordFromWire(out.Record), true, nil
}

// Join asks the contact at addr to admit self.
func (c *Client) Join(ctx context.Context, addr string, self membership.Member) ([]membership.Member, error) {
	out := new(MembersResponse)
	if err := c.invoke(ctx, addr, joinMethod, &JoinRequest{Member: memberToWire(self)}, out); err != nil {
		return nil, err
	}
	return membersFromWire(out.Members), nil
}

// Sync pushes members to addr and returns its member list.
func (c *Client) Sync(ctx context.Context, addr, from string, members []membership.Member) ([]membership.Member, error) {
	in := &SyncRequest{From: from, Members: membersToWire(members)}
	out := new(MembersResponse)
	if err := c.invoke(ctx, addr, syncMethod, in, out); err != nil {
		return nil, err
	}
	return membersFromWire(out.Members), nil
}
