package quorum

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ringkv/internal/ring"
)

const (
	// DefaultTimeout is the operation deadline used when none is given.
	DefaultTimeout = 2 * time.Second
)

// State is the lifecycle of one fan-out.
type State int

const (
	// Dispatched means calls have been issued.
	Dispatched State = iota
	// AwaitingAcks means the fan-out is counting replies.
	AwaitingAcks
	// Satisfied means the required number of replicas answered.
	Satisfied
	// TimedOut means the required number can no longer be reached.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Dispatched:
		return "dispatched"
	case AwaitingAcks:
		return "awaiting_acks"
	case Satisfied:
		return "satisfied"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CallFunc performs one replica call. A nil error counts as an ack.
type CallFunc[T any] func(ctx context.Context, replica ring.Node) (T, error)

// Response is a successful reply from one replica.
type Response[T any] struct {
	Node  ring.Node
	Value T
}

// Outcome represents the result of a fan-out.
type Outcome[T any] struct {
	State     State
	Acks      int
	Required  int
	Replicas  int
	Responses []Response[T]
	// Failures maps replica ID to the error it returned. Replicas still in
	// flight when the fan-out finished are absent.
	Failures     map[string]error
	ErrorMessage string
}

// Success reports whether the fan-out was satisfied.
func (o Outcome[T]) Success() bool {
	return o.State == Satisfied
}

type reply[T any] struct {
	node  ring.Node
	value T
	err   error
}

// Fanout calls every replica concurrently and waits for required acks or
// for the timeout, whichever comes first.
func Fanout[T any](ctx context.Context, replicas []ring.Node, required int, timeout time.Duration, call CallFunc[T]) Outcome[T] {
	out := Outcome[T]{
		State:    Dispatched,
		Required: required,
		Replicas: len(replicas),
		Failures: make(map[string]error),
	}

	if len(replicas) == 0 {
		out.State = TimedOut
		out.ErrorMessage = "no replicas provided"
		return out
	}
	if required <= 0 || required > len(replicas) {
		out.State = TimedOut
		out.ErrorMessage = fmt.Sprintf("required=%d invalid for replica count=%d", required, len(replicas))
		return out
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so stragglers never block after we return.
	results := make(chan reply[T], len(replicas))
	for _, replica := range replicas {
		go func(n ring.Node) {
			v, err := call(opCtx, n)
			results <- reply[T]{node: n, value: v, err: err}
		}(replica)
	}

	out.State = AwaitingAcks
	pending := len(replicas)
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			if r.err != nil {
				out.Failures[r.node.ID] = r.err
			} else {
				out.Acks++
				out.Responses = append(out.Responses, Response[T]{Node: r.node, Value: r.value})
			}

			if out.Acks >= required {
				out.State = Satisfied
				return out
			}
			if out.Acks+pending < required {
				out.State = TimedOut
				out.ErrorMessage = out.failureMessage("quorum not met")
				return out
			}
		case <-opCtx.Done():
			out.State = TimedOut
			out.ErrorMessage = out.failureMessage(fmt.Sprintf("deadline exceeded: %v", opCtx.Err()))
			return out
		}
	}

	out.State = TimedOut
	out.ErrorMessage = out.failureMessage("quorum not met")
	return out
}

func (o Outcome[T]) failureMessage(reason string) string {
	msg := fmt.Sprintf("%s: acks=%d required=%d replicas=%d", reason, o.Acks, o.Required, o.Replicas)
	if len(o.Failures) == 0 {
		return msg
	}

	ids := make([]string, 0, len(o.Failures))
	for id := range o.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 3 {
		ids = ids[:3]
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s: %v", id, o.Failures[id])
	}
	return msg + " errors=[" + strings.Join(parts, "; ") + "]"
}
