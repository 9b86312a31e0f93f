package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ClusterHandlers contains the cluster introspection handlers
type ClusterHandlers struct {
	engine *Engine
}

// NewClusterHandlers creates a new instance of ClusterHandlers
func NewClusterHandlers(engine *Engine) *ClusterHandlers {
	return &ClusterHandlers{engine: engine}
}

// Status handles GET /api/v1/cluster/status
func (clh *ClusterHandlers) Status(w http.ResponseWriter, r *http.Request) {
	clh.engine.TrackOperation()
	defer clh.engine.UntrackOperation()

	status := clh.engine.node.Status()
	movies, bookings, payments := clh.engine.machine.Counts()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	peers := make([]NodeStatus, len(status.Peers))
	var wg sync.WaitGroup
	for i, peer := range status.Peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			peers[i] = NodeStatus{
				NodeID:    peer,
				Address:   clh.engine.peerAddrs[peer],
				Reachable: clh.probePeer(ctx, peer),
			}
		}(i, peer)
	}
	wg.Wait()

	clh.writeJSONResponse(w, http.StatusOK, ClusterStatusResponse{
		Status:    StatusSuccess,
		NodeID:    status.NodeID,
		Role:      status.Role,
		Term:      status.Term,
		LeaderID:  status.LeaderID,
		Commit:    status.CommitIndex,
		Applied:   status.LastApplied,
		LogLength: status.LogLength,
		Movies:    movies,
		Bookings:  bookings,
		Payments:  payments,
		Peers:     peers,
		Metrics:   clh.engine.GetMetrics(),
	})
}

func (clh *ClusterHandlers) probePeer(ctx context.Context, peer string) bool {
	addr, ok := clh.engine.peerAddrs[peer]
	if !ok {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := clh.engine.forward.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (clh *ClusterHandlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
