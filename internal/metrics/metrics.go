// Package metrics holds the process-wide Prometheus collectors. Every series
// carries a node label so several in-process nodes can share one registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ringkv"
)

var (
	// OperationsTotal counts coordinated client operations
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of coordinated operations",
		},
		[]string{"node", "op", "consistency", "outcome"}, // op: put/get/delete
	)

	// OperationDuration measures coordinated operation latency
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Coordinated operation latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"node", "op", "consistency"},
	)

	// ReplicaCalls counts per-replica calls issued by coordinators
	ReplicaCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replica_calls_total",
			Help:      "Total number of replica calls issued by coordinators",
		},
		[]string{"node", "op", "status"}, // status: ok/error
	)

	// StaleReplies counts read replies that lost conflict resolution
	StaleReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_replies_total",
			Help:      "Total number of read replies older than the resolved winner",
		},
		[]string{"node"},
	)

	// Members tracks directory members per status
	Members = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of known members by status",
		},
		[]string{"node", "status"}, // alive/suspected/unreachable
	)

	// RingSize tracks members on the ring
	RingSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_size",
			Help:      "Number of nodes on the current ring",
		},
		[]string{"node"},
	)

	// KeysTotal tracks locally stored records
	KeysTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys_total",
			Help:      "Number of locally stored records",
		},
		[]string{"node", "kind"}, // live/tombstone
	)

	// RPCRequests counts peer RPCs served
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of peer RPCs served",
		},
		[]string{"node", "method", "code"},
	)

	// HTTPRequests counts HTTP API requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		},
		[]string{"node", "method", "status"},
	)

	// RESPCommands counts RESP commands
	RESPCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resp_commands_total",
			Help:      "Total number of RESP commands processed",
		},
		[]string{"node", "cmd", "status"},
	)
)

// RecordOperation records one coordinated operation.
func RecordOperation(node, op, consistency string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	OperationsTotal.WithLabelValues(node, op, consistency, outcome).Inc()
	OperationDuration.WithLabelValues(node, op, consistency).Observe(duration.Seconds())
}

// RecordReplicaCall records one replica call.
func RecordReplicaCall(node, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ReplicaCalls.WithLabelValues(node, op, status).Inc()
}

// SetKeys publishes local record counts.
func SetKeys(node string, live, total int) {
	KeysTotal.WithLabelValues(node, "live").Set(float64(live))
	KeysTotal.WithLabelValues(node, "tombstone").Set(float64(total - live))
}
