package rpc

import (
	"context"
	"path"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ringkv/internal/membership"
	"ringkv/internal/metrics"
	"ringkv/internal/replication"
)

// Server implements PeerServer over a coordinator and a directory.
type Server struct {
	nodeID    string
	coord     *replication.Coordinator
	directory *membership.Directory
	logger    *zap.Logger
}

// NewServer creates a new peer service instance.
func NewServer(nodeID string, coord *replication.Coordinator, directory *membership.Directory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		nodeID:    nodeID,
		coord:     coord,
		directory: directory,
		logger:    logger.With(zap.String("component", "rpc")),
	}
}

// Apply handles replica writes from a coordinator.
func (s *Server) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	if req.Record == nil || req.Record.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	s.logger.Debug("replica apply",
		zap.String("key", req.Record.Key),
		zap.String("coordinator", req.Coordinator),
		zap.String("request_id", req.RequestID),
		zap.Bool("tombstone", req.Record.Tombstone))

	stored := s.coord.ApplyLocal(recordFromWire(req.Record))
	return &ApplyResponse{Stored: recordToWire(stored)}, nil
}

// Get handles replica reads from a coordinator.
func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	if req.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	s.logger.Debug("replica get",
		zap.String("key", req.Key),
		zap.String("coordinator", req.Coordinator),
		zap.String("request_id", req.RequestID))

	rec, ok := s.coord.GetLocal(req.Key)
	if !ok {
		return &GetResponse{Found: false}, nil
	}
	return &GetResponse{Found: true, Record: recordToWire(rec)}, nil
}

// Join admits a new member and returns the member list.
func (s *Server) Join(ctx context.Context, req *JoinRequest) (*MembersResponse, error) {
	if req.Member == nil || req.Member.ID == "" || req.Member.Addr == "" {
		return nil, status.Error(codes.InvalidArgument, "member id and address are required")
	}

	members := s.directory.HandleJoin(ctx, memberFromWire(req.Member))
	return &MembersResponse{Members: membersToWire(members)}, nil
}

// Sync merges a pushed member list and returns ours. It doubles as the
// liveness probe.
func (s *Server) Sync(ctx context.Context, req *SyncRequest) (*MembersResponse, error) {
	if req.From == "" {
		return nil, status.Error(codes.InvalidArgument, "sender id is required")
	}

	members := s.directory.HandleSync(req.From, membersFromWire(req.Members))
	return &MembersResponse{Members: membersToWire(members)}, nil
}

// MetricsInterceptor counts served RPCs by method and status code.
func MetricsInterceptor(nodeID string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		metrics.RPCRequests.WithLabelValues(nodeID, path.Base(info.FullMethod), status.Code(err).String()).Inc()
		return resp, err
	}
}
