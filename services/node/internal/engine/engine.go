package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/database"
	"github.com/aisleco/aisle-open/pkg/logger"
	"github.com/aisleco/aisle-open/services/node/internal/auth"
	"github.com/aisleco/aisle-open/services/node/internal/booking"
	"github.com/aisleco/aisle-open/services/node/internal/consensus"
)

const (
	defaultHTTPPort  = 8081
	defaultPeerPort  = 9081
	defaultAssistURL = "http://localhost:8090"
)

// Engine wires the consensus node, state machine, auth manager and the two
// HTTP servers (client API and peer RPC) into one running booking node.
type Engine struct {
	config *config.Config
	logger *logger.Logger

	node    *consensus.Node
	machine *booking.StateMachine
	auth    *auth.Manager

	server     *http.Server
	peerServer *consensus.PeerServer

	db    *database.PostgreSQL
	redis *database.Redis

	nodeID      string
	peerAddrs   map[string]string
	routerAddrs map[string]string
	routerOrder []string
	assistURL   string
	forward     *http.Client

	state struct {
		sync.Mutex
		isRunning         bool
		ongoingOperations int32
	}
	metrics struct {
		requestsProcessed int64
		writesForwarded   int64
		errors            int64
	}
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		config:  cfg,
		forward: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetLogger sets the logger for the engine
func (e *Engine) SetLogger(logger *logger.Logger) {
	e.logger = logger
}

func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	if e.state.isRunning {
		e.state.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.state.isRunning = true
	e.state.Unlock()

	e.nodeID = e.config.GetOrDefault("node.id", "node1")
	httpPort := e.config.GetInt("services.node.http_port", defaultHTTPPort)
	peerPort := e.config.GetInt("services.node.peer_port", defaultPeerPort)
	e.assistURL = e.config.GetOrDefault("services.assist.url", defaultAssistURL)

	var err error
	e.peerAddrs, err = parsePeerMap(e.config.Get("cluster.peers"))
	if err != nil {
		return fmt.Errorf("invalid cluster.peers: %v", err)
	}
	e.routerAddrs, err = parsePeerMap(e.config.Get("cluster.routers"))
	if err != nil {
		return fmt.Errorf("invalid cluster.routers: %v", err)
	}
	e.routerOrder = sortedKeys(e.routerAddrs)

	if e.logger != nil {
		e.logger.Infof("Starting node %s (client port %d, peer port %d, %d peers)",
			e.nodeID, httpPort, peerPort, len(e.peerAddrs))
	}

	e.machine = booking.NewStateMachine(e.logger)

	store, err := e.openStateStore(ctx)
	if err != nil {
		return err
	}

	peers := sortedKeys(e.peerAddrs)
	consensusCfg := consensus.Config{
		NodeID:             e.nodeID,
		Peers:              peers,
		ElectionTimeoutMin: e.config.GetDuration("cluster.election_timeout_min", 5*time.Second),
		ElectionTimeoutMax: e.config.GetDuration("cluster.election_timeout_max", 10*time.Second),
		HeartbeatInterval:  e.config.GetDuration("cluster.heartbeat_interval", 1*time.Second),
		RPCTimeout:         e.config.GetDuration("cluster.rpc_timeout", 2*time.Second),
		SubmitTimeout:      e.config.GetDuration("cluster.submit_timeout", 10*time.Second),
	}
	transport := consensus.NewHTTPTransport(e.peerAddrs, consensusCfg.RPCTimeout)

	e.node, err = consensus.NewNode(consensusCfg, transport, store, e.machine, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create consensus node: %v", err)
	}

	revocations, err := e.openRevocationStore(ctx)
	if err != nil {
		return err
	}
	e.auth, err = auth.NewManager(e.config, e.logger, revocations)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %v", err)
	}

	e.peerServer = consensus.NewPeerServer(e.node, e.logger, peerPort)
	go func() {
		if err := e.peerServer.Start(); err != nil {
			if e.logger != nil {
				e.logger.Errorf("Peer server error: %v", err)
			}
			atomic.AddInt64(&e.metrics.errors, 1)
		}
	}()

	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: NewServer(e),
	}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if e.logger != nil {
				e.logger.Errorf("HTTP server error: %v", err)
			}
			atomic.AddInt64(&e.metrics.errors, 1)
		}
	}()

	e.node.Start()

	if e.logger != nil {
		e.logger.Infof("Node %s started successfully", e.nodeID)
	}
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	e.state.Unlock()

	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil && e.logger != nil {
			e.logger.Warnf("HTTP server shutdown: %v", err)
		}
	}
	if e.peerServer != nil {
		if err := e.peerServer.Shutdown(ctx); err != nil && e.logger != nil {
			e.logger.Warnf("Peer server shutdown: %v", err)
		}
	}
	if e.node != nil {
		e.node.Stop()
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	return nil
}

// openStateStore picks the consensus persistence backend. Without
// PostgreSQL configured the node runs in memory and a crash is a
// permanent failure of that node.
func (e *Engine) openStateStore(ctx context.Context) (consensus.StateStore, error) {
	if !e.config.GetBool("storage.postgres.enabled", false) {
		if e.logger != nil {
			e.logger.Warnf("Running without durable consensus state; a crash permanently removes node %s from the cluster", e.nodeID)
		}
		return consensus.NewMemoryStore(), nil
	}

	db, err := database.PostgreSQLFromConfig(ctx, e.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}
	e.db = db

	store, err := consensus.NewPostgresStore(db.Pool(), e.logger, e.nodeID)
	if err != nil {
		return nil, err
	}
	if e.logger != nil {
		e.logger.Infof("Consensus state persisted to PostgreSQL")
	}
	return store, nil
}

// openRevocationStore picks the token revocation backend. Redis makes a
// logout visible cluster-wide; the in-memory store is node-local.
func (e *Engine) openRevocationStore(ctx context.Context) (auth.RevocationStore, error) {
	if !e.config.GetBool("storage.redis.enabled", false) {
		return auth.NewMemoryRevocations(), nil
	}

	r, err := database.RedisFromConfig(ctx, e.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}
	e.redis = r

	if e.logger != nil {
		e.logger.Infof("Token revocations shared via Redis")
	}
	return auth.NewRedisRevocations(r.Client()), nil
}

func (e *Engine) GetMetrics() map[string]int64 {
	out := map[string]int64{
		"requests_processed": atomic.LoadInt64(&e.metrics.requestsProcessed),
		"writes_forwarded":   atomic.LoadInt64(&e.metrics.writesForwarded),
		"errors":             atomic.LoadInt64(&e.metrics.errors),
	}
	if e.node != nil {
		for k, v := range e.node.Metrics() {
			out["consensus_"+k] = v
		}
	}
	if e.machine != nil {
		for k, v := range e.machine.Metrics() {
			out["booking_"+k] = v
		}
	}
	return out
}

func (e *Engine) CheckHTTPServer() error {
	e.state.Lock()
	defer e.state.Unlock()
	if !e.state.isRunning {
		return fmt.Errorf("service not initialized")
	}
	if e.server == nil {
		return fmt.Errorf("HTTP server not initialized")
	}
	return nil
}

func (e *Engine) CheckConsensus() error {
	e.state.Lock()
	running := e.state.isRunning
	e.state.Unlock()
	if !running {
		return fmt.Errorf("service not initialized")
	}
	if e.node == nil {
		return fmt.Errorf("consensus node not initialized")
	}
	if e.node.LeaderID() == "" {
		return fmt.Errorf("no leader known (election in progress)")
	}
	return nil
}

func (e *Engine) TrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, 1)
	atomic.AddInt64(&e.metrics.requestsProcessed, 1)
}

func (e *Engine) UntrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, -1)
}

// parsePeerMap parses "node2=http://host:port,node3=http://host:port"
func parsePeerMap(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, addr, ok := strings.Cut(pair, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		out[strings.TrimSpace(id)] = strings.TrimSpace(addr)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
