package replication

import "errors"

var (
	// ErrInsufficientReplicas means the replica set is smaller than the
	// consistency level requires.
	ErrInsufficientReplicas = errors.New("insufficient replicas")
	// ErrQuorumNotReached means too few replicas acknowledged before the
	// deadline.
	ErrQuorumNotReached = errors.New("quorum not reached")
	// ErrKeyNotFound means the resolved version is absent or a tombstone.
	ErrKeyNotFound = errors.New("key not found")
	// ErrPeerUnreachable is returned by PeerClient implementations when a
	// single replica call fails.
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrInvalidConsistency is returned for unknown consistency names.
	ErrInvalidConsistency = errors.New("invalid consistency level")
)
