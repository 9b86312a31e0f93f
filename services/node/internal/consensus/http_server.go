package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aisleco/aisle-open/pkg/logger"
)

// PeerServer exposes a node's consensus RPCs over HTTP on the peer port
type PeerServer struct {
	handler RPCHandler
	logger  *logger.Logger
	server  *http.Server
}

// NewPeerServer creates the peer-facing HTTP server
func NewPeerServer(handler RPCHandler, log *logger.Logger, port int) *PeerServer {
	s := &PeerServer{
		handler: handler,
		logger:  log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/raft/v1/request-vote", s.handleRequestVote).Methods("POST")
	router.HandleFunc("/raft/v1/append-entries", s.handleAppendEntries).Methods("POST")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the server stops
func (s *PeerServer) Start() error {
	if s.logger != nil {
		s.logger.Infof("Peer RPC server listening on %s", s.server.Addr)
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("peer server error: %v", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *PeerServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *PeerServer) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.handler.HandleRequestVote(&req))
}

func (s *PeerServer) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.handler.HandleAppendEntries(&req))
}

func (s *PeerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *PeerServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Warnf("Failed to encode peer RPC reply: %v", err)
	}
}
