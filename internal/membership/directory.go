package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ringkv/internal/metrics"
	"ringkv/internal/ring"
)

// ErrJoinFailed is returned when the contact node could not admit us.
var ErrJoinFailed = errors.New("join failed")

// Status represents the liveness of a member as seen by this node.
type Status int

const (
	Alive Status = iota
	Suspected
	Unreachable
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case Alive:
		return "alive"
	case Suspected:
		return "suspected"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Member represents a cluster member.
type Member struct {
	ID       string
	Addr     string
	Status   Status
	LastSeen time.Time
}

// Node returns the ring identity of m.
func (m Member) Node() ring.Node {
	return ring.Node{ID: m.ID, Addr: m.Addr}
}

// Transport carries membership messages between nodes.
type Transport interface {
	// Join asks the contact at addr to admit self and returns its members.
	Join(ctx context.Context, addr string, self Member) ([]Member, error)
	// Sync pushes members to addr and returns the receiver's members.
	Sync(ctx context.Context, addr, from string, members []Member) ([]Member, error)
}

// Options configures a Directory.
type Options struct {
	VNodes         int
	ProbeInterval  time.Duration
	SuspectTimeout time.Duration
	RPCTimeout     time.Duration
	Logger         *zap.Logger
}

// Directory manages cluster membership and publishes ring snapshots.
type Directory struct {
	mu      sync.RWMutex
	self    Member
	members map[string]*Member // id -> Member

	ring atomic.Pointer[ring.Ring]

	vnodes         int
	probeInterval  time.Duration
	suspectTimeout time.Duration
	rpcTimeout     time.Duration

	transport Transport
	logger    *zap.Logger
	now       func() time.Time

	broadcasts sync.WaitGroup
}

// New creates a directory that initially knows only self.
func New(self ring.Node, transport Transport, opts Options) *Directory {
	if opts.VNodes <= 0 {
		opts.VNodes = 1
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 1 * time.Second
	}
	if opts.SuspectTimeout <= 0 {
		opts.SuspectTimeout = 5 * time.Second
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = opts.ProbeInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	d := &Directory{
		members:        make(map[string]*Member),
		vnodes:         opts.VNodes,
		probeInterval:  opts.ProbeInterval,
		suspectTimeout: opts.SuspectTimeout,
		rpcTimeout:     opts.RPCTimeout,
		transport:      transport,
		logger:         opts.Logger.With(zap.String("component", "membership")),
		now:            time.Now,
	}

	d.self = Member{ID: self.ID, Addr: self.Addr, Status: Alive, LastSeen: d.now()}
	me := d.self
	d.members[self.ID] = &me
	d.rebuildLocked()

	return d
}

// Self returns this node's member entry.
func (d *Directory) Self() Member {
	return d.self
}

// Snapshot returns the current ring. The ring is immutable; membership
// changes publish a new one.
func (d *Directory) Snapshot() *ring.Ring {
	return d.ring.Load()
}

// Members returns a copy of all known members sorted by ID.
func (d *Directory) Members() []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.membersLocked()
}

// Peers returns all known members except self.
func (d *Directory) Peers() []Member {
	all := d.Members()
	peers := make([]Member, 0, len(all))
	for _, m := range all {
		if m.ID != d.self.ID {
			peers = append(peers, m)
		}
	}
	return peers
}

// Member returns the entry for id.
func (d *Directory) Member(id string) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[id]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

func (d *Directory) membersLocked() []Member {
	out := make([]Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seed adds statically configured members, assumed alive.
func (d *Directory) Seed(nodes []ring.Node) {
	peers := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		peers = append(peers, Member{ID: n.ID, Addr: n.Addr, Status: Alive})
	}
	d.Merge(peers)
}

// Merge reconciles a peer list into the directory. Unknown members are
// added as Alive and address changes are applied. Status of known members
// is left to the local prober. Reports whether anything changed.
func (d *Directory) Merge(peers []Member) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mergeLocked(peers)
}

func (d *Directory) mergeLocked(peers []Member) bool {
	changed := false
	for _, p := range peers {
		if p.ID == "" || p.ID == d.self.ID {
			continue
		}

		local, exists := d.members[p.ID]
		if !exists {
			d.members[p.ID] = &Member{ID: p.ID, Addr: p.Addr, Status: Alive, LastSeen: d.now()}
			d.logger.Info("discovered member", zap.String("member", p.ID), zap.String("addr", p.Addr))
			changed = true
			continue
		}
		if p.Addr != "" && p.Addr != local.Addr {
			d.logger.Info("member address changed",
				zap.String("member", p.ID), zap.String("from", local.Addr), zap.String("to", p.Addr))
			local.Addr = p.Addr
			changed = true
		}
	}

	if changed {
		d.rebuildLocked()
	}
	return changed
}

// SetStatus records a liveness verdict for id.
func (d *Directory) SetStatus(id string, status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setStatusLocked(id, status)
}

func (d *Directory) setStatusLocked(id string, status Status) {
	m, ok := d.members[id]
	if !ok || id == d.self.ID {
		return
	}
	if status == Alive {
		m.LastSeen = d.now()
	}
	if m.Status == status {
		return
	}

	d.logger.Info("member status changed",
		zap.String("member", id), zap.Stringer("from", m.Status), zap.Stringer("to", status))
	m.Status = status
	d.rebuildLocked()
}

// MarkAlive marks a member as alive (called on any contact from it).
func (d *Directory) MarkAlive(id string) {
	d.SetStatus(id, Alive)
}

// rebuildLocked publishes a new ring from the Alive members.
func (d *Directory) rebuildLocked() {
	nodes := make([]ring.Node, 0, len(d.members))
	counts := map[Status]int{}
	for _, m := range d.members {
		counts[m.Status]++
		if m.Status == Alive {
			nodes = append(nodes, m.Node())
		}
	}
	d.ring.Store(ring.New(nodes, d.vnodes))

	for _, s := range []Status{Alive, Suspected, Unreachable} {
		metrics.Members.WithLabelValues(d.self.ID, s.String()).Set(float64(counts[s]))
	}
	metrics.RingSize.WithLabelValues(d.self.ID).Set(float64(len(nodes)))
}

// Join admits this node through the member at contactAddr and adopts the
// contact's member list.
func (d *Directory) Join(ctx context.Context, contactAddr string) error {
	ctx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
	defer cancel()

	peers, err := d.transport.Join(ctx, contactAddr, d.Self())
	if err != nil {
		return fmt.Errorf("%w: contact %s: %w", ErrJoinFailed, contactAddr, err)
	}

	d.Merge(peers)
	d.logger.Info("joined cluster", zap.String("contact", contactAddr), zap.Int("members", len(peers)))
	return nil
}

// HandleJoin admits m and returns the full member list. The new list is
// pushed to the other known peers in the background, so a slow or failed
// peer never holds up the joiner. Wait blocks until those pushes finish.
func (d *Directory) HandleJoin(ctx context.Context, m Member) []Member {
	d.mu.Lock()
	d.mergeLocked([]Member{m})
	d.setStatusLocked(m.ID, Alive)
	members := d.membersLocked()
	d.mu.Unlock()

	d.logger.Info("admitted member", zap.String("member", m.ID), zap.String("addr", m.Addr))

	targets := make([]Member, 0, len(members))
	for _, p := range members {
		if p.ID != d.self.ID && p.ID != m.ID {
			targets = append(targets, p)
		}
	}
	if len(targets) > 0 {
		d.broadcasts.Add(1)
		go func() {
			defer d.broadcasts.Done()
			d.broadcast(context.WithoutCancel(ctx), targets, members)
		}()
	}

	return members
}

// Wait blocks until every broadcast started by HandleJoin has completed.
func (d *Directory) Wait() {
	d.broadcasts.Wait()
}

// HandleSync merges a pushed member list from a peer and returns ours.
func (d *Directory) HandleSync(from string, members []Member) []Member {
	d.Merge(members)
	d.MarkAlive(from)
	return d.Members()
}

// broadcast pushes members to every target in parallel and merges replies.
func (d *Directory) broadcast(ctx context.Context, targets, members []Member) {
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target Member) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
			defer cancel()

			reply, err := d.transport.Sync(callCtx, target.Addr, d.self.ID, members)
			if err != nil {
				d.logger.Warn("membership broadcast failed", zap.String("peer", target.ID), zap.Error(err))
				return
			}
			d.Merge(reply)
		}(target)
	}
	wg.Wait()
}

// Run probes every peer each interval until ctx is cancelled.
func (d *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce syncs with every peer once, updates their status and then
// escalates long-suspected members to Unreachable.
func (d *Directory) ProbeOnce(ctx context.Context) {
	peers := d.Peers()
	members := d.Members()

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer Member) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
			defer cancel()

			reply, err := d.transport.Sync(callCtx, peer.Addr, d.self.ID, members)
			if err != nil {
				d.mu.Lock()
				if m := d.members[peer.ID]; m != nil && m.Status == Alive {
					d.logger.Warn("probe failed", zap.String("peer", peer.ID), zap.Error(err))
					d.setStatusLocked(peer.ID, Suspected)
				}
				d.mu.Unlock()
				return
			}

			d.mu.Lock()
			d.mergeLocked(reply)
			d.setStatusLocked(peer.ID, Alive)
			d.mu.Unlock()
		}(peer)
	}
	wg.Wait()

	d.checkTimeouts()
}

// checkTimeouts marks members suspected for longer than the suspect
// timeout as Unreachable.
func (d *Directory) checkTimeouts() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, m := range d.members {
		if id == d.self.ID || m.Status != Suspected {
			continue
		}
		if now.Sub(m.LastSeen) > d.suspectTimeout {
			d.setStatusLocked(id, Unreachable)
		}
	}
}
