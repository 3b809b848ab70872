// Package httpapi exposes a node over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ringkv/internal/membership"
	"ringkv/internal/metrics"
	"ringkv/internal/node"
	"ringkv/internal/replication"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// Backend is the node surface served over HTTP.
type Backend interface {
	ID() string
	Put(ctx context.Context, key string, value []byte, level replication.Consistency) (replication.WriteResult, error)
	Get(ctx context.Context, key string, level replication.Consistency) (replication.ReadResult, error)
	Delete(ctx context.Context, key string, level replication.Consistency) (replication.WriteResult, error)
	Join(ctx context.Context, contact string) error
	Status() node.Status
	ListNodes() []membership.Member
}

// Server represents the HTTP server in front of a node.
type Server struct {
	backend    Backend
	logger     *zap.Logger
	httpServer *http.Server
	addr       string
}

// NewServer creates a new server instance.
func NewServer(backend Backend, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		backend: backend,
		logger:  logger.With(zap.String("component", "http")),
		addr:    addr,
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.String("addr", lis.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Put("/keys/{key}", s.handlePut)
	r.Get("/keys/{key}", s.handleGet)
	r.Delete("/keys/{key}", s.handleDelete)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/join", s.handleJoin)
		r.Get("/status", s.handleStatus)
		r.Get("/peers", s.handlePeers)
	})

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(s.backend.ID(), r.Method, strconv.Itoa(status)).Inc()
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding response", zap.Error(err))
	}
}

// statusFor maps node and replication errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrEmptyKey), errors.Is(err, replication.ErrInvalidConsistency):
		return http.StatusBadRequest
	case errors.Is(err, replication.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, replication.ErrInsufficientReplicas):
		return http.StatusServiceUnavailable
	case errors.Is(err, replication.ErrQuorumNotReached):
		return http.StatusGatewayTimeout
	case errors.Is(err, membership.ErrJoinFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, partial Response) {
	partial.Status = StatusError
	partial.Error = err.Error()
	s.writeJSON(w, statusFor(err), partial)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

type putRequest struct {
	Value       *string `json:"value"`
	Consistency string  `json:"consistency"`
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req putRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("invalid JSON body"))
		return
	}
	if req.Value == nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("missing 'value'"))
		return
	}

	name := req.Consistency
	if q := r.URL.Query().Get("consistency"); q != "" {
		name = q
	}
	level, err := replication.ParseConsistency(name, replication.Quorum)
	if err != nil {
		s.writeError(w, err, Response{Key: key})
		return
	}

	res, err := s.backend.Put(r.Context(), key, []byte(*req.Value), level)
	resp := newWriteResponse(s.backend.ID(), key, level, res)
	if err != nil {
		s.writeError(w, err, resp)
		return
	}
	resp.Value = *req.Value
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	level, err := replication.ParseConsistency(r.URL.Query().Get("consistency"), replication.One)
	if err != nil {
		s.writeError(w, err, Response{Key: key})
		return
	}

	res, err := s.backend.Get(r.Context(), key, level)
	resp := newReadResponse(s.backend.ID(), key, level, res)
	if err != nil {
		s.writeError(w, err, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	level, err := replication.ParseConsistency(r.URL.Query().Get("consistency"), replication.Quorum)
	if err != nil {
		s.writeError(w, err, Response{Key: key})
		return
	}

	res, err := s.backend.Delete(r.Context(), key, level)
	resp := newWriteResponse(s.backend.ID(), key, level, res)
	if err != nil {
		s.writeError(w, err, resp)
		return
	}
	resp.Message = fmt.Sprintf("Key %s deleted", key)
	s.writeJSON(w, http.StatusOK, resp)
}

type joinRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Address == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("missing 'address'"))
		return
	}

	if err := s.backend.Join(r.Context(), req.Address); err != nil {
		s.logger.Warn("join failed", zap.String("contact", req.Address), zap.Error(err))
		s.writeJSON(w, statusFor(err), NewErrorResponse(
			fmt.Sprintf("%s: contact %s", membership.ErrJoinFailed, req.Address)))
		return
	}
	s.writeJSON(w, http.StatusOK, Response{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("joined cluster via %s", req.Address),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, peerInfos(s.backend.ListNodes()))
}
