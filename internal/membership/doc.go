// Package membership keeps each node's view of the cluster and the ring
// derived from it.
//
// Propagation is best effort:
// - a join is broadcast to known peers once, failures are only logged
// - the liveness prober pushes the member list to every peer each round
// - members are never removed, only marked Suspected or Unreachable
// - only Alive members are placed on the ring
package membership
