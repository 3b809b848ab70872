// Package quorum provides the fan-out engine behind quorum reads and writes.
// A call is dispatched to every replica in parallel, and the wait returns as
// soon as enough replicas answered, as soon as too few can still answer, or
// when the operation deadline expires. Calls still in flight are cancelled
// on return and their late replies are discarded.
package quorum
