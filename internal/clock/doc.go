// Package clock provides the hybrid timestamps used to order writes for
// last-writer-wins resolution. A Timestamp pairs wall-clock nanoseconds with
// the ID of the node that issued it, so two timestamps are never equal unless
// they came from the same node at the same tick.
package clock
