package consensus

import (
	"time"
)

// Role represents the current role of a node in the cluster
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// LogEntry represents a single entry in the replicated log.
// Indexes are zero-based; Index -1 is the "nothing" sentinel used by the
// replication protocol.
type LogEntry struct {
	Term    uint64 `json:"term"`
	Index   int64  `json:"index"`
	Command []byte `json:"command"`
}

// VoteRequest is sent by candidates to gather votes
type VoteRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Term         uint64 `json:"term"`
	LastLogIndex int64  `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// VoteReply answers a VoteRequest
type VoteReply struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// AppendRequest carries heartbeats and log entries from the leader
type AppendRequest struct {
	From         string     `json:"from"`
	To           string     `json:"to"`
	Term         uint64     `json:"term"`
	PrevLogIndex int64      `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	CommitIndex  int64      `json:"commit_index"`
	Entries      []LogEntry `json:"entries"`
}

// AppendReply answers an AppendRequest. MatchIndex is -1 when the
// consistency check failed, otherwise the highest index now known
// replicated on the receiver.
type AppendReply struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Term          uint64 `json:"term"`
	EntryAppended bool   `json:"entry_appended"`
	MatchIndex    int64  `json:"match_index"`
}

// Config holds the tunables of a consensus node
type Config struct {
	NodeID             string
	Peers              []string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	RPCTimeout         time.Duration
	SubmitTimeout      time.Duration
}

// DefaultConfig returns the reference deployment tunables
func DefaultConfig(nodeID string, peers []string) Config {
	return Config{
		NodeID:             nodeID,
		Peers:              peers,
		ElectionTimeoutMin: 5 * time.Second,
		ElectionTimeoutMax: 10 * time.Second,
		HeartbeatInterval:  1 * time.Second,
		RPCTimeout:         2 * time.Second,
		SubmitTimeout:      10 * time.Second,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ElectionTimeoutMin <= 0 {
		out.ElectionTimeoutMin = 5 * time.Second
	}
	if out.ElectionTimeoutMax <= out.ElectionTimeoutMin {
		out.ElectionTimeoutMax = 2 * out.ElectionTimeoutMin
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 1 * time.Second
	}
	if out.RPCTimeout <= 0 {
		out.RPCTimeout = 2 * time.Second
	}
	if out.SubmitTimeout <= 0 {
		out.SubmitTimeout = 10 * time.Second
	}
	return out
}

// StateMachine applies committed commands in strict log order. Apply must be
// deterministic; a domain-level rejection is a valid result, not an error.
type StateMachine interface {
	Apply(command []byte) []byte
}

// Status is a point-in-time snapshot of a node's consensus state
type Status struct {
	NodeID      string   `json:"node_id"`
	Role        Role     `json:"role"`
	Term        uint64   `json:"term"`
	LeaderID    string   `json:"leader_id"`
	CommitIndex int64    `json:"commit_index"`
	LastApplied int64    `json:"last_applied"`
	LogLength   int64    `json:"log_length"`
	Peers       []string `json:"peers"`
}
