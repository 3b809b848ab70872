package it

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ringkv/internal/httpapi"
	"ringkv/internal/membership"
	"ringkv/internal/replication"
)

func startCluster(t *testing.T, opts Options, count int) *Cluster {
	t.Helper()
	cluster := NewCluster(opts)
	t.Cleanup(cluster.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, cluster.StartCluster(ctx, count), "Failed to start cluster")

	for _, id := range cluster.NodeIDs() {
		require.Equal(t, count, cluster.GetNode(id).Directory().Snapshot().Len(), "ring of %s", id)
	}
	return cluster
}

// quietOptions disables background probing so membership only changes when
// a test asks for it.
func quietOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.ProbeInterval = time.Hour
	opts.SuspectTimeout = time.Hour
	opts.Logger = zaptest.NewLogger(t)
	return opts
}

func TestSmoke_PutGetDelete_SingleKey(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()
	n1, n2 := cluster.GetNode("n1"), cluster.GetNode("n2")

	putRes, err := n1.Put(ctx, "test-key", []byte("test-value"), replication.Quorum)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, putRes.Acks, 2)
	assert.Equal(t, 3, putRes.Replicas)

	getRes, err := n2.Get(ctx, "test-key", replication.Quorum)
	require.NoError(t, err)
	assert.True(t, getRes.Found)
	assert.Equal(t, "test-value", string(getRes.Value))

	_, err = n1.Delete(ctx, "test-key", replication.Quorum)
	require.NoError(t, err)

	_, err = n2.Get(ctx, "test-key", replication.Quorum)
	assert.ErrorIs(t, err, replication.ErrKeyNotFound)
}

func TestReadAfterWrite_All(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()

	res, err := cluster.GetNode("n1").Put(ctx, "raw", []byte("v1"), replication.All)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Acks)

	// every replica holds the value, so ONE reads anywhere see it
	for _, id := range cluster.NodeIDs() {
		got, err := cluster.GetNode(id).Get(ctx, "raw", replication.One)
		require.NoError(t, err, "read via %s", id)
		assert.Equal(t, "v1", string(got.Value), "read via %s", id)
	}
}

func TestQuorum_ToleratesOneNodeDown(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()
	n1 := cluster.GetNode("n1")

	_, err := n1.Put(ctx, "quorum-test", []byte("initial"), replication.Quorum)
	require.NoError(t, err)

	require.NoError(t, cluster.KillNode("n3"))

	// n3 is still on n1's ring: 2 of 3 replicas acknowledge
	res, err := n1.Put(ctx, "quorum-test", []byte("updated"), replication.Quorum)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Acks)
	assert.Equal(t, 3, res.Replicas)

	got, err := cluster.GetNode("n2").Get(ctx, "quorum-test", replication.Quorum)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(got.Value))
}

func TestAll_FailsUntilDeadNodeLeavesRing(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()
	n1 := cluster.GetNode("n1")

	require.NoError(t, cluster.KillNode("n3"))

	res, err := n1.Put(ctx, "all-key", []byte("v"), replication.All)
	require.ErrorIs(t, err, replication.ErrQuorumNotReached)
	assert.NotErrorIs(t, err, replication.ErrPeerUnreachable)
	assert.Less(t, res.Acks, 3)

	n1.Directory().ProbeOnce(ctx)
	m, ok := n1.Directory().Member("n3")
	require.True(t, ok)
	assert.Equal(t, membership.Suspected, m.Status)
	assert.False(t, n1.Directory().Snapshot().Contains("n3"))

	res, err = n1.Put(ctx, "all-key", []byte("v"), replication.All)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Acks)
	assert.Equal(t, 2, res.Replicas)
}

func TestJoin_NewNodeConverges(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()

	n4, err := cluster.StartNode(ctx, "n4", "n1")
	require.NoError(t, err)

	for _, id := range cluster.NodeIDs() {
		ring := cluster.GetNode(id).Directory().Snapshot()
		assert.Equal(t, 4, ring.Len(), "ring of %s", id)
		assert.True(t, ring.Contains("n4"), "ring of %s", id)
	}

	_, err = n4.Put(ctx, "after-join", []byte("x"), replication.All)
	require.NoError(t, err)
	got, err := cluster.GetNode("n2").Get(ctx, "after-join", replication.All)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got.Value))
}

func TestFailureDetection_MarksDeadNodeUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping failure detection test in short mode")
	}
	opts := DefaultOptions()
	opts.Logger = zaptest.NewLogger(t)
	cluster := startCluster(t, opts, 3)

	require.NoError(t, cluster.KillNode("n2"))

	n1 := cluster.GetNode("n1")
	require.Eventually(t, func() bool {
		m, ok := n1.Directory().Member("n2")
		return ok && m.Status == membership.Unreachable
	}, 5*time.Second, 50*time.Millisecond)

	assert.False(t, n1.Directory().Snapshot().Contains("n2"))
	assert.Len(t, n1.ListNodes(), 3, "members are never removed")

	_, err := n1.Put(context.Background(), "k", []byte("v"), replication.All)
	require.NoError(t, err)
}

func TestHTTP_EndToEnd(t *testing.T) {
	cluster := startCluster(t, quietOptions(t), 3)
	ctx := context.Background()

	var clients []*httpapi.Client
	for _, id := range []string{"n1", "n2"} {
		ts := httptest.NewServer(httpapi.NewServer(cluster.GetNode(id), "", zaptest.NewLogger(t)).Handler())
		t.Cleanup(ts.Close)
		clients = append(clients, httpapi.NewClient(ts.URL, 2*time.Second))
	}

	put, err := clients[0].Put(ctx, "greeting", "hello", "all")
	require.NoError(t, err)
	assert.Equal(t, "n1", put.CoordinatedBy)
	assert.Equal(t, 3, put.SuccessfulReplicas)

	got, err := clients[1].Get(ctx, "greeting", "one")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Value)
	assert.Equal(t, "n2", got.CoordinatedBy)

	_, err = clients[1].Delete(ctx, "greeting", "all")
	require.NoError(t, err)
	_, err = clients[0].Get(ctx, "greeting", "quorum")
	assert.ErrorIs(t, err, httpapi.ErrNotFound)

	st, err := clients[0].Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.RingSize)
	assert.Equal(t, 2, st.PeerCount)
}
