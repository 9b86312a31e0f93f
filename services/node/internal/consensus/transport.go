package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Transport delivers consensus RPCs to a peer and returns its reply
type Transport interface {
	RequestVote(ctx context.Context, target string, req *VoteRequest) (*VoteReply, error)
	AppendEntries(ctx context.Context, target string, req *AppendRequest) (*AppendReply, error)
}

// RPCHandler is the receiver side of the consensus RPCs
type RPCHandler interface {
	HandleRequestVote(req *VoteRequest) *VoteReply
	HandleAppendEntries(req *AppendRequest) *AppendReply
}

// LocalNetwork is an in-process transport fabric. It routes RPCs between
// registered handlers and can partition links, which makes cluster tests
// deterministic without sockets.
type LocalNetwork struct {
	mu       sync.RWMutex
	handlers map[string]RPCHandler
	blocked  map[string]map[string]bool
	latency  time.Duration
}

// NewLocalNetwork returns an empty fabric
func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		handlers: make(map[string]RPCHandler),
		blocked:  make(map[string]map[string]bool),
	}
}

// Register attaches a handler under the given node ID
func (n *LocalNetwork) Register(nodeID string, handler RPCHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[nodeID] = handler
}

// Deregister detaches a handler; subsequent RPCs to it fail
func (n *LocalNetwork) Deregister(nodeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, nodeID)
}

// SetLatency adds a fixed one-way delay to every delivered RPC
func (n *LocalNetwork) SetLatency(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latency = d
}

// Partition blocks traffic between a and b in both directions
func (n *LocalNetwork) Partition(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockLocked(a, b)
	n.blockLocked(b, a)
}

// Isolate blocks traffic between nodeID and every registered node
func (n *LocalNetwork) Isolate(nodeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for other := range n.handlers {
		if other == nodeID {
			continue
		}
		n.blockLocked(nodeID, other)
		n.blockLocked(other, nodeID)
	}
}

// Heal restores traffic between a and b
func (n *LocalNetwork) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked[a], b)
	delete(n.blocked[b], a)
}

// HealAll restores all links
func (n *LocalNetwork) HealAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked = make(map[string]map[string]bool)
}

func (n *LocalNetwork) blockLocked(from, to string) {
	if n.blocked[from] == nil {
		n.blocked[from] = make(map[string]bool)
	}
	n.blocked[from][to] = true
}

// Transport returns the fabric viewed from one node
func (n *LocalNetwork) Transport(nodeID string) Transport {
	return &localTransport{network: n, from: nodeID}
}

type localTransport struct {
	network *LocalNetwork
	from    string
}

func (t *localTransport) deliver(ctx context.Context, target string) (RPCHandler, error) {
	t.network.mu.RLock()
	handler, ok := t.network.handlers[target]
	blocked := t.network.blocked[t.from][target]
	latency := t.network.latency
	t.network.mu.RUnlock()

	if !ok || blocked {
		return nil, fmt.Errorf("peer %s is unreachable", target)
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return handler, nil
}

func (t *localTransport) RequestVote(ctx context.Context, target string, req *VoteRequest) (*VoteReply, error) {
	handler, err := t.deliver(ctx, target)
	if err != nil {
		return nil, err
	}
	return handler.HandleRequestVote(req), nil
}

func (t *localTransport) AppendEntries(ctx context.Context, target string, req *AppendRequest) (*AppendReply, error) {
	handler, err := t.deliver(ctx, target)
	if err != nil {
		return nil, err
	}
	return handler.HandleAppendEntries(req), nil
}
