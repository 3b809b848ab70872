package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringkv/internal/clock"
	"ringkv/internal/conflict"
	"ringkv/internal/metrics"
	"ringkv/internal/quorum"
	"ringkv/internal/record"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
)

// DefaultReplicationFactor is used when Config.ReplicationFactor is unset.
const DefaultReplicationFactor = 3

// Meta identifies the operation a replica call belongs to.
type Meta struct {
	RequestID   string
	Coordinator string
}

// PeerClient sends replica calls to other nodes. Implementations wrap
// transport failures in ErrPeerUnreachable.
type PeerClient interface {
	Apply(ctx context.Context, addr string, rec record.Record, meta Meta) error
	Get(ctx context.Context, addr, key string, meta Meta) (record.Record, bool, error)
}

// RingSource hands out immutable ring snapshots.
type RingSource interface {
	Snapshot() *ring.Ring
}

// Config holds the coordinator's collaborators.
type Config struct {
	Self              ring.Node
	ReplicationFactor int
	Timeout           time.Duration
	Ring              RingSource
	Store             *storage.InMemoryStore
	Peers             PeerClient
	Clock             *clock.Clock
	Logger            *zap.Logger
}

// WriteResult describes a successful or failed write or delete.
type WriteResult struct {
	Timestamp  clock.Timestamp
	Acks       int
	Required   int
	Replicas   int
	ReplicaIDs []string
}

// ReadResult describes a read.
type ReadResult struct {
	Value     []byte
	Found     bool
	Timestamp clock.Timestamp
	Responses int
	Required  int
	Replicas  int
}

// Coordinator runs replicated operations on behalf of one node.
type Coordinator struct {
	self    ring.Node
	rf      int
	timeout time.Duration
	ring    RingSource
	store   *storage.InMemoryStore
	peers   PeerClient
	clock   *clock.Clock
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator from cfg.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = DefaultReplicationFactor
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = quorum.DefaultTimeout
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewInMemoryStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New(cfg.Self.ID)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Coordinator{
		self:    cfg.Self,
		rf:      cfg.ReplicationFactor,
		timeout: cfg.Timeout,
		ring:    cfg.Ring,
		store:   cfg.Store,
		peers:   cfg.Peers,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With(zap.String("component", "coordinator")),
	}
}

// ReplicationFactor returns the configured N.
func (c *Coordinator) ReplicationFactor() int {
	return c.rf
}

// Store returns the local record table.
func (c *Coordinator) Store() *storage.InMemoryStore {
	return c.store
}

// Write stores value under key on the key's replica set.
func (c *Coordinator) Write(ctx context.Context, key string, value []byte, level Consistency) (WriteResult, error) {
	return c.write(ctx, "put", record.Record{Key: key, Value: value}, level)
}

// Delete writes a tombstone for key on the key's replica set.
func (c *Coordinator) Delete(ctx context.Context, key string, level Consistency) (WriteResult, error) {
	return c.write(ctx, "delete", record.Record{Key: key, Tombstone: true}, level)
}

func (c *Coordinator) write(ctx context.Context, op string, rec record.Record, level Consistency) (res WriteResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOperation(c.self.ID, op, level.String(), time.Since(start), err)
	}()

	replicas := c.ring.Snapshot().ReplicaSet(rec.Key, c.rf)
	required := Required(level, c.rf, len(replicas))
	res = WriteResult{Required: required, Replicas: len(replicas)}

	if len(replicas) == 0 || required > len(replicas) {
		return res, fmt.Errorf("%w: required=%d replicas=%d", ErrInsufficientReplicas, required, len(replicas))
	}

	rec.Timestamp = c.clock.Now()
	res.Timestamp = rec.Timestamp
	meta := Meta{RequestID: uuid.NewString(), Coordinator: c.self.ID}

	log := c.logger.With(
		zap.String("op", op),
		zap.String("key", rec.Key),
		zap.String("request_id", meta.RequestID),
		zap.Stringer("consistency", level),
	)
	log.Debug("dispatching write", zap.Int("replicas", len(replicas)), zap.Int("required", required))

	outcome := quorum.Fanout(ctx, replicas, required, c.timeout, func(ctx context.Context, n ring.Node) (struct{}, error) {
		if n.ID == c.self.ID {
			c.store.Put(rec)
			return struct{}{}, nil
		}
		err := c.peers.Apply(ctx, n.Addr, rec, meta)
		metrics.RecordReplicaCall(c.self.ID, "apply", err)
		return struct{}{}, err
	})

	res.Acks = outcome.Acks
	for _, r := range outcome.Responses {
		res.ReplicaIDs = append(res.ReplicaIDs, r.Node.ID)
	}

	if !outcome.Success() {
		log.Warn("write failed", zap.String("reason", outcome.ErrorMessage))
		return res, fmt.Errorf("%w: acks=%d required=%d replicas=%d",
			ErrQuorumNotReached, outcome.Acks, required, len(replicas))
	}
	return res, nil
}

type readReply struct {
	rec   record.Record
	found bool
}

// Read returns the newest version of key among the first replicas to
// answer. A missing or deleted key yields ErrKeyNotFound.
func (c *Coordinator) Read(ctx context.Context, key string, level Consistency) (res ReadResult, err error) {
	start := time.Now()
	defer func() {
		recorded := err
		if errors.Is(err, ErrKeyNotFound) {
			recorded = nil
		}
		metrics.RecordOperation(c.self.ID, "get", level.String(), time.Since(start), recorded)
	}()

	replicas := c.ring.Snapshot().ReplicaSet(key, c.rf)
	required := Required(level, c.rf, len(replicas))
	res = ReadResult{Required: required, Replicas: len(replicas)}

	if len(replicas) == 0 || required > len(replicas) {
		return res, fmt.Errorf("%w: required=%d replicas=%d", ErrInsufficientReplicas, required, len(replicas))
	}

	meta := Meta{RequestID: uuid.NewString(), Coordinator: c.self.ID}
	log := c.logger.With(
		zap.String("op", "get"),
		zap.String("key", key),
		zap.String("request_id", meta.RequestID),
		zap.Stringer("consistency", level),
	)

	outcome := quorum.Fanout(ctx, replicas, required, c.timeout, func(ctx context.Context, n ring.Node) (readReply, error) {
		if n.ID == c.self.ID {
			rec, ok := c.store.Get(key)
			return readReply{rec: rec, found: ok}, nil
		}
		rec, ok, err := c.peers.Get(ctx, n.Addr, key, meta)
		metrics.RecordReplicaCall(c.self.ID, "get", err)
		return readReply{rec: rec, found: ok}, err
	})

	res.Responses = outcome.Acks
	if !outcome.Success() {
		log.Warn("read failed", zap.String("reason", outcome.ErrorMessage))
		return res, fmt.Errorf("%w: responses=%d required=%d replicas=%d",
			ErrQuorumNotReached, outcome.Acks, required, len(replicas))
	}

	found := make([]record.Record, 0, len(outcome.Responses))
	byReplica := make(map[string]*record.Record, len(outcome.Responses))
	for _, r := range outcome.Responses {
		if !r.Value.found {
			byReplica[r.Node.ID] = nil
			continue
		}
		rec := r.Value.rec
		found = append(found, rec)
		byReplica[r.Node.ID] = &rec
	}

	winner, ok := conflict.Reconcile(found...)
	if !ok {
		return res, ErrKeyNotFound
	}
	c.clock.Observe(winner.Timestamp)

	if stale := conflict.Stale(winner, byReplica); len(stale) > 0 {
		metrics.StaleReplies.WithLabelValues(c.self.ID).Add(float64(len(stale)))
		log.Debug("stale replicas observed", zap.Strings("replicas", stale))
	}

	res.Timestamp = winner.Timestamp
	if winner.Tombstone {
		return res, ErrKeyNotFound
	}
	res.Value = winner.Value
	res.Found = true
	return res, nil
}

// ApplyLocal stores a record sent by another coordinator.
func (c *Coordinator) ApplyLocal(rec record.Record) record.Record {
	c.clock.Observe(rec.Timestamp)
	return c.store.Put(rec)
}

// GetLocal returns this node's version of key.
func (c *Coordinator) GetLocal(key string) (record.Record, bool) {
	return c.store.Get(key)
}
