package httpapi

import (
	"time"

	"ringkv/internal/membership"
	"ringkv/internal/replication"
)

// Status is the outcome reported in every Response.
type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status  Status `json:"status,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	ConsistencyLevel      string `json:"consistency_level,omitempty"`
	CoordinatedBy         string `json:"coordinated_by,omitempty"`
	SuccessfulReplicas    int    `json:"successful_replicas"`
	RequiredReplicas      int    `json:"required_replicas"`
	TotalPossibleReplicas int    `json:"total_possible_replicas"`
	Timestamp             string `json:"timestamp,omitempty"`
}

// PeerInfo is one entry of GET /admin/peers.
type PeerInfo struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// NewOKResponse returns the health-check reply.
func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

// NewErrorResponse returns a failure reply carrying err as its message.
func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

func newWriteResponse(coordinator, key string, level replication.Consistency, res replication.WriteResult) Response {
	r := Response{
		Status:                StatusSuccess,
		Key:                   key,
		ConsistencyLevel:      level.String(),
		CoordinatedBy:         coordinator,
		SuccessfulReplicas:    res.Acks,
		RequiredReplicas:      res.Required,
		TotalPossibleReplicas: res.Replicas,
	}
	if !res.Timestamp.IsZero() {
		r.Timestamp = res.Timestamp.String()
	}
	return r
}

func newReadResponse(coordinator, key string, level replication.Consistency, res replication.ReadResult) Response {
	r := Response{
		Status:                StatusSuccess,
		Key:                   key,
		Value:                 string(res.Value),
		ConsistencyLevel:      level.String(),
		CoordinatedBy:         coordinator,
		SuccessfulReplicas:    res.Responses,
		RequiredReplicas:      res.Required,
		TotalPossibleReplicas: res.Replicas,
	}
	if !res.Timestamp.IsZero() {
		r.Timestamp = res.Timestamp.String()
	}
	return r
}

func peerInfos(members []membership.Member) []PeerInfo {
	out := make([]PeerInfo, 0, len(members))
	for _, m := range members {
		out = append(out, PeerInfo{
			ID:       m.ID,
			Address:  m.Addr,
			Status:   m.Status.String(),
			LastSeen: m.LastSeen,
		})
	}
	return out
}
