package quorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ringkv/internal/ring"
)

func numbered(total int) []ring.Node {
	nodes := make([]ring.Node, total)
	for i := range nodes {
		nodes[i] = ring.Node{ID: fmt.Sprintf("replica%d", i)}
	}
	return nodes
}

func indexOf(nodes []ring.Node, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// TestQuorum_WriteSuccessIffAcksGEQ_W tests that write succeeds iff acks >= W
func TestQuorum_WriteSuccessIffAcksGEQ_W(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		w             int
		successAcks   int
		shouldSucceed bool
	}{
		{"W=2, 2 acks, should succeed", 3, 2, 2, true},
		{"W=2, 1 ack, should fail", 3, 2, 1, false},
		{"W=2, 3 acks, should succeed", 3, 2, 3, true},
		{"W=3, 2 acks, should fail", 3, 3, 2, false},
		{"W=3, 3 acks, should succeed", 3, 3, 3, true},
		{"W=1, 1 ack, should succeed", 3, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replicas := numbered(tt.total)

			writeFn := func(ctx context.Context, n ring.Node) (struct{}, error) {
				// Simulate success for first successAcks replicas
				if indexOf(replicas, n.ID) < tt.successAcks {
					return struct{}{}, nil
				}
				return struct{}{}, errors.New("simulated failure")
			}

			result := Fanout(context.Background(), replicas, tt.w, 5*time.Second, writeFn)

			if result.Success() != tt.shouldSucceed {
				t.Errorf("Expected success=%v, got %v (acks=%d, W=%d)",
					tt.shouldSucceed, result.Success(), tt.successAcks, tt.w)
			}
		})
	}
}

// TestQuorum_ReadSuccessIffResponsesGEQ_R tests that read succeeds iff responses >= R
func TestQuorum_ReadSuccessIffResponsesGEQ_R(t *testing.T) {
	tests := []struct {
		name             string
		total            int
		r                int
		successResponses int
		shouldSucceed    bool
	}{
		{"R=2, 2 responses, should succeed", 3, 2, 2, true},
		{"R=2, 1 response, should fail", 3, 2, 1, false},
		{"R=2, 3 responses, should succeed", 3, 2, 3, true},
		{"R=3, 2 responses, should fail", 3, 3, 2, false},
		{"R=3, 3 responses, should succeed", 3, 3, 3, true},
		{"R=1, 1 response, should succeed", 3, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replicas := numbered(tt.total)

			readFn := func(ctx context.Context, n ring.Node) ([]byte, error) {
				// Simulate success for first successResponses replicas
				if indexOf(replicas, n.ID) < tt.successResponses {
					return []byte("value"), nil
				}
				return nil, errors.New("simulated failure")
			}

			result := Fanout(context.Background(), replicas, tt.r, 5*time.Second, readFn)

			if result.Success() != tt.shouldSucceed {
				t.Errorf("Expected success=%v, got %v (responses=%d, R=%d)",
					tt.shouldSucceed, result.Success(), tt.successResponses, tt.r)
			}
		})
	}
}

// TestQuorum_EarlyTermination tests that quorum stops early when threshold met
func TestQuorum_EarlyTermination(t *testing.T) {
	replicas := replicaNodes("r1", "r2", "r3", "r4", "r5")
	w := 3

	var mu sync.Mutex
	callCount := 0
	writeFn := func(ctx context.Context, n ring.Node) (struct{}, error) {
		mu.Lock()
		callCount++
		mu.Unlock()
		return struct{}{}, nil
	}

	result := Fanout(context.Background(), replicas, w, 5*time.Second, writeFn)

	if !result.Success() {
		t.Error("Expected success")
	}

	// Every replica is dispatched; success is decided once W acks arrive
	mu.Lock()
	count := callCount
	mu.Unlock()

	if count < w {
		t.Errorf("Should have called at least %d replicas, got %d", w, count)
	}
	if result.Acks != w {
		t.Errorf("Expected to stop counting at %d acks, got %d", w, result.Acks)
	}
}

// TestQuorum_TimeoutHandling tests that timeouts are handled correctly
func TestQuorum_TimeoutHandling(t *testing.T) {
	replicas := replicaNodes("r1", "r2", "r3")
	w := 2

	writeFn := func(ctx context.Context, n ring.Node) (struct{}, error) {
		// Simulate timeout by waiting longer than the operation deadline
		select {
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return struct{}{}, nil
		}
	}

	result := Fanout(context.Background(), replicas, w, 100*time.Millisecond, writeFn)

	// Should fail due to timeout
	if result.Success() {
		t.Error("Expected failure due to timeout")
	}
	if result.ErrorMessage == "" {
		t.Error("Expected error message for timeout")
	}
}

// TestQuorum_AllFailures tests that all failures result in failure
func TestQuorum_AllFailures(t *testing.T) {
	replicas := replicaNodes("r1", "r2", "r3")
	w := 2

	writeFn := func(ctx context.Context, n ring.Node) (struct{}, error) {
		return struct{}{}, errors.New("all replicas failed")
	}

	result := Fanout(context.Background(), replicas, w, 5*time.Second, writeFn)

	if result.Success() {
		t.Error("Expected failure when all replicas fail")
	}
}
