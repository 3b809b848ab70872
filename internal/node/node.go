package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"ringkv/internal/clock"
	"ringkv/internal/config"
	"ringkv/internal/membership"
	"ringkv/internal/metrics"
	"ringkv/internal/replication"
	"ringkv/internal/ring"
	"ringkv/internal/rpc"
	"ringkv/internal/storage"
)

// ErrEmptyKey is returned for requests without a key.
var ErrEmptyKey = errors.New("key cannot be empty")

// keysSample bounds the key list reported by Status.
const keysSample = 10

// Options configures a Node.
type Options struct {
	ID string
	// Addr is the gRPC address advertised to peers.
	Addr              string
	ReplicationFactor int
	VNodes            int
	RequestTimeout    time.Duration
	ProbeInterval     time.Duration
	SuspectTimeout    time.Duration
	// Seeds are known members added at startup without contacting them.
	Seeds []ring.Node
	// Join is a contact address used at startup. Empty means start alone.
	Join string
	// DialOptions are appended to the peer client's defaults.
	DialOptions []grpc.DialOption
	Logger      *zap.Logger
}

// OptionsFromConfig maps a validated configuration onto node options.
func OptionsFromConfig(cfg config.Config, logger *zap.Logger) Options {
	return Options{
		ID:                cfg.Node.ID,
		Addr:              cfg.Advertise(),
		ReplicationFactor: cfg.Cluster.ReplicationFactor,
		VNodes:            cfg.Cluster.VNodes,
		RequestTimeout:    cfg.Cluster.RequestTimeout,
		ProbeInterval:     cfg.Cluster.ProbeInterval,
		SuspectTimeout:    cfg.Cluster.SuspectTimeout,
		Seeds:             cfg.SeedNodes(),
		Join:              cfg.Cluster.Join,
		Logger:            logger,
	}
}

// Node represents a single node in the distributed system.
type Node struct {
	self   ring.Node
	join   string
	seeds  []ring.Node
	logger *zap.Logger

	store     *storage.InMemoryStore
	clientMgr *rpc.ClientManager
	directory *membership.Directory
	coord     *replication.Coordinator

	grpcServer *grpc.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a node. Nothing is started until Start and Serve.
func New(opts Options) *Node {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("node", opts.ID))
	self := ring.Node{ID: opts.ID, Addr: opts.Addr}

	clientMgr := rpc.NewClientManager(opts.DialOptions...)
	client := rpc.NewClient(clientMgr, opts.RequestTimeout)

	directory := membership.New(self, client, membership.Options{
		VNodes:         opts.VNodes,
		ProbeInterval:  opts.ProbeInterval,
		SuspectTimeout: opts.SuspectTimeout,
		Logger:         logger,
	})

	store := storage.NewInMemoryStore()
	coord := replication.NewCoordinator(replication.Config{
		Self:              self,
		ReplicationFactor: opts.ReplicationFactor,
		Timeout:           opts.RequestTimeout,
		Ring:              directory,
		Store:             store,
		Peers:             client,
		Clock:             clock.New(opts.ID),
		Logger:            logger,
	})

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(rpc.MetricsInterceptor(opts.ID)))
	rpc.RegisterPeerServer(grpcServer, rpc.NewServer(opts.ID, coord, directory, logger))

	return &Node{
		self:       self,
		join:       opts.Join,
		seeds:      opts.Seeds,
		logger:     logger,
		store:      store,
		clientMgr:  clientMgr,
		directory:  directory,
		coord:      coord,
		grpcServer: grpcServer,
	}
}

// ID returns the node id.
func (n *Node) ID() string { return n.self.ID }

// Addr returns the advertised peer address.
func (n *Node) Addr() string { return n.self.Addr }

// Directory exposes the membership directory.
func (n *Node) Directory() *membership.Directory { return n.directory }

// Serve accepts peer RPCs on lis until Stop is called.
func (n *Node) Serve(lis net.Listener) error {
	n.logger.Info("serving peer rpc", zap.String("addr", lis.Addr().String()))
	if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start seeds the directory, joins the configured contact and launches the
// liveness prober. The prober keeps running after a failed join so a later
// probe can still discover the cluster.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return errors.New("node already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.cancel = cancel
	n.done = make(chan struct{})
	n.mu.Unlock()

	if len(n.seeds) > 0 {
		n.directory.Seed(n.seeds)
	}

	go func() {
		defer close(n.done)
		n.directory.Run(runCtx)
	}()

	if n.join != "" {
		if err := n.Join(ctx, n.join); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the prober, drains in-flight RPCs and closes peer connections.
func (n *Node) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	n.logger.Info("stopping node")
	n.grpcServer.GracefulStop()
	n.directory.Wait()
	if err := n.clientMgr.Close(); err != nil {
		n.logger.Warn("closing peer connections", zap.Error(err))
	}
}

// Put writes value under key at the given consistency level.
func (n *Node) Put(ctx context.Context, key string, value []byte, level replication.Consistency) (replication.WriteResult, error) {
	if key == "" {
		return replication.WriteResult{}, ErrEmptyKey
	}
	return n.coord.Write(ctx, key, value, level)
}

// Get reads key at the given consistency level.
func (n *Node) Get(ctx context.Context, key string, level replication.Consistency) (replication.ReadResult, error) {
	if key == "" {
		return replication.ReadResult{}, ErrEmptyKey
	}
	return n.coord.Read(ctx, key, level)
}

// Delete removes key at the given consistency level.
func (n *Node) Delete(ctx context.Context, key string, level replication.Consistency) (replication.WriteResult, error) {
	if key == "" {
		return replication.WriteResult{}, ErrEmptyKey
	}
	return n.coord.Delete(ctx, key, level)
}

// Join asks the node at contact to admit this node.
func (n *Node) Join(ctx context.Context, contact string) error {
	if contact == "" {
		return fmt.Errorf("%w: empty contact address", membership.ErrJoinFailed)
	}
	return n.directory.Join(ctx, contact)
}

// Status is a point-in-time summary of the node.
type Status struct {
	NodeID            string   `json:"node_id"`
	Address           string   `json:"address"`
	RingSize          int      `json:"ring_size"`
	PeerCount         int      `json:"peer_count"`
	LocalKeys         int      `json:"local_keys"`
	KeysSample        []string `json:"keys_sample"`
	ReplicationFactor int      `json:"replication_factor"`
}

// Status reports ring and local store figures.
func (n *Node) Status() Status {
	live, total := n.store.LiveLen(), n.store.Len()
	metrics.SetKeys(n.self.ID, live, total)

	return Status{
		NodeID:            n.self.ID,
		Address:           n.self.Addr,
		RingSize:          n.directory.Snapshot().Len(),
		PeerCount:         len(n.directory.Peers()),
		LocalKeys:         live,
		KeysSample:        n.store.Keys(keysSample),
		ReplicationFactor: n.coord.ReplicationFactor(),
	}
}

// ListNodes returns every known member sorted by id.
func (n *Node) ListNodes() []membership.Member {
	return n.directory.Members()
}
