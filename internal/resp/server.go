// Package resp serves a small Redis-compatible command set on top of a node.
package resp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/tidwall/redcon"
	"go.uber.org/zap"

	"ringkv/internal/membership"
	"ringkv/internal/metrics"
	"ringkv/internal/node"
	"ringkv/internal/replication"
)

// Backend is the node surface reachable over RESP.
type Backend interface {
	ID() string
	Put(ctx context.Context, key string, value []byte, level replication.Consistency) (replication.WriteResult, error)
	Get(ctx context.Context, key string, level replication.Consistency) (replication.ReadResult, error)
	Delete(ctx context.Context, key string, level replication.Consistency) (replication.WriteResult, error)
	Status() node.Status
	ListNodes() []membership.Member
}

type commandFunc func(conn redcon.Conn, args [][]byte) error

// Server speaks the Redis protocol in front of a node.
type Server struct {
	addr     string
	backend  Backend
	logger   *zap.Logger
	commands map[string]commandFunc

	mu       sync.RWMutex
	server   *redcon.Server
	listener net.Listener
}

// NewServer creates a RESP server for backend. Nothing listens until Start
// or Serve.
func NewServer(addr string, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		backend: backend,
		logger:  logger.With(zap.String("component", "resp")),
	}
	s.commands = map[string]commandFunc{
		"PING":   s.cmdPing,
		"GET":    s.cmdGet,
		"SET":    s.cmdSet,
		"DEL":    s.cmdDel,
		"NODES":  s.cmdNodes,
		"STATUS": s.cmdStatus,
		"QUIT":   s.cmdQuit,
	}
	return s
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := s.attach(ln)
	go func() {
		if err := srv.Serve(ln); err != nil {
			s.logger.Error("RESP server error", zap.Error(err))
		}
	}()
	return nil
}

// Serve accepts RESP connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	return s.attach(ln).Serve(ln)
}

func (s *Server) attach(ln net.Listener) *redcon.Server {
	srv := redcon.NewServer(s.addr, s.handleCommand, s.handleAccept, s.handleClose)

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("RESP server started", zap.String("addr", ln.Addr().String()))
	return srv
}

// Stop closes the listener and every client connection.
func (s *Server) Stop() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		return ln.Addr().String()
	}
	return s.addr
}

func (s *Server) handleAccept(conn redcon.Conn) bool {
	s.logger.Debug("client connected", zap.String("remote", conn.RemoteAddr()))
	return true
}

func (s *Server) handleClose(conn redcon.Conn, err error) {
	s.logger.Debug("client disconnected", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
}

func (s *Server) handleCommand(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}

	name := strings.ToUpper(string(cmd.Args[0]))
	fn, ok := s.commands[name]
	if !ok {
		metrics.RESPCommands.WithLabelValues(s.backend.ID(), "unknown", "error").Inc()
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", cmd.Args[0]))
		return
	}

	status := "ok"
	if err := fn(conn, cmd.Args[1:]); err != nil {
		status = "error"
		conn.WriteError(errorReply(err))
	}
	metrics.RESPCommands.WithLabelValues(s.backend.ID(), strings.ToLower(name), status).Inc()
}

var errSyntax = errors.New("syntax error")

// errorReply renders err as "ERR <kind> <detail>".
func errorReply(err error) string {
	kind := "internal"
	switch {
	case errors.Is(err, errSyntax):
		kind = "syntax"
	case errors.Is(err, node.ErrEmptyKey), errors.Is(err, replication.ErrInvalidConsistency):
		kind = "invalid_argument"
	case errors.Is(err, replication.ErrInsufficientReplicas):
		kind = "insufficient_replicas"
	case errors.Is(err, replication.ErrQuorumNotReached):
		kind = "quorum_not_reached"
	}
	return "ERR " + kind + " " + err.Error()
}

// level parses an optional trailing consistency argument.
func level(args [][]byte, at int, fallback replication.Consistency) (replication.Consistency, error) {
	if len(args) <= at {
		return fallback, nil
	}
	return replication.ParseConsistency(string(args[at]), fallback)
}

func arity(args [][]byte, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: wrong number of arguments", errSyntax)
	}
	return nil
}

func (s *Server) cmdPing(conn redcon.Conn, args [][]byte) error {
	if len(args) > 0 {
		conn.WriteBulk(args[0])
		return nil
	}
	conn.WriteString("PONG")
	return nil
}

// GET key [level]
func (s *Server) cmdGet(conn redcon.Conn, args [][]byte) error {
	if err := arity(args, 1, 2); err != nil {
		return err
	}
	lvl, err := level(args, 1, replication.One)
	if err != nil {
		return err
	}

	res, err := s.backend.Get(context.Background(), string(args[0]), lvl)
	if errors.Is(err, replication.ErrKeyNotFound) {
		conn.WriteNull()
		return nil
	}
	if err != nil {
		return err
	}
	conn.WriteBulk(res.Value)
	return nil
}

// SET key value [level]
func (s *Server) cmdSet(conn redcon.Conn, args [][]byte) error {
	if err := arity(args, 2, 3); err != nil {
		return err
	}
	lvl, err := level(args, 2, replication.Quorum)
	if err != nil {
		return err
	}

	// redcon reuses argument buffers once the handler returns
	value := append([]byte(nil), args[1]...)
	if _, err := s.backend.Put(context.Background(), string(args[0]), value, lvl); err != nil {
		return err
	}
	conn.WriteString("OK")
	return nil
}

// DEL key [level]
func (s *Server) cmdDel(conn redcon.Conn, args [][]byte) error {
	if err := arity(args, 1, 2); err != nil {
		return err
	}
	lvl, err := level(args, 1, replication.Quorum)
	if err != nil {
		return err
	}

	if _, err := s.backend.Delete(context.Background(), string(args[0]), lvl); err != nil {
		return err
	}
	conn.WriteInt(1)
	return nil
}

func (s *Server) cmdNodes(conn redcon.Conn, args [][]byte) error {
	members := s.backend.ListNodes()
	conn.WriteArray(len(members))
	for _, m := range members {
		conn.WriteBulkString(fmt.Sprintf("%s %s %s", m.ID, m.Addr, m.Status))
	}
	return nil
}

func (s *Server) cmdStatus(conn redcon.Conn, args [][]byte) error {
	st := s.backend.Status()
	conn.WriteBulkString(fmt.Sprintf(
		"node_id:%s\r\naddress:%s\r\nring_size:%d\r\npeer_count:%d\r\nlocal_keys:%d\r\nreplication_factor:%d\r\n",
		st.NodeID, st.Address, st.RingSize, st.PeerCount, st.LocalKeys, st.ReplicationFactor))
	return nil
}

func (s *Server) cmdQuit(conn redcon.Conn, args [][]byte) error {
	conn.WriteString("OK")
	if err := conn.Close(); err != nil {
		s.logger.Debug("closing connection", zap.Error(err))
	}
	return nil
}
