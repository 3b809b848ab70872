package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("m-node", "put", "quorum", "success"))
	RecordOperation("m-node", "put", "quorum", 5*time.Millisecond, nil)
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("m-node", "put", "quorum", "success"))

	if after-before != 1 {
		t.Errorf("Expected success counter to grow by 1, grew by %v", after-before)
	}

	RecordOperation("m-node", "put", "quorum", time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues("m-node", "put", "quorum", "error")); got < 1 {
		t.Errorf("Expected error counter >= 1, got %v", got)
	}
}

func TestRecordReplicaCall(t *testing.T) {
	RecordReplicaCall("m-node", "apply", nil)
	RecordReplicaCall("m-node", "apply", errors.New("down"))

	if got := testutil.ToFloat64(ReplicaCalls.WithLabelValues("m-node", "apply", "ok")); got < 1 {
		t.Errorf("Expected ok counter >= 1, got %v", got)
	}
	if got := testutil.ToFloat64(ReplicaCalls.WithLabelValues("m-node", "apply", "error")); got < 1 {
		t.Errorf("Expected error counter >= 1, got %v", got)
	}
}

func TestSetKeys(t *testing.T) {
	SetKeys("m-node", 3, 5)

	if got := testutil.ToFloat64(KeysTotal.WithLabelValues("m-node", "live")); got != 3 {
		t.Errorf("Expected 3 live keys, got %v", got)
	}
	if got := testutil.ToFloat64(KeysTotal.WithLabelValues("m-node", "tombstone")); got != 2 {
		t.Errorf("Expected 2 tombstones, got %v", got)
	}
}
