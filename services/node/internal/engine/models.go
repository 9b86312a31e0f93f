package engine

import (
	"encoding/json"

	"github.com/aisleco/aisle-open/services/node/internal/consensus"
)

// Status represents the status of an operation
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusFailure   Status = "failure"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// LoginRequest carries user credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the session token
type LoginResponse struct {
	Status  Status `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// StatusResponse is the generic status/message reply. For successful
// writes Message carries the JSON-encoded command result; for not-leader
// failures it contains the substring "Not the leader" which clients use
// as a retry signal.
type StatusResponse struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// DataItem is one row of a query result
type DataItem struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// GetResponse is the query reply
type GetResponse struct {
	Status  Status     `json:"status"`
	Items   []DataItem `json:"items"`
	Message string     `json:"message"`
}

// CommandRequest is a client write. Type selects the operation; RequestID
// is the idempotency key (minted server-side when absent).
type CommandRequest struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id,omitempty"`
	MovieID       string `json:"movie_id,omitempty"`
	Seats         []int  `json:"seats,omitempty"`
	BookingID     string `json:"booking_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// AssistRequest asks the assist service a question
type AssistRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

// AssistResponse carries the assist service's answer
type AssistResponse struct {
	Status Status `json:"status"`
	Answer string `json:"answer"`
}

// NodeStatus describes one cluster member as seen from this node
type NodeStatus struct {
	NodeID    string `json:"node_id"`
	Address   string `json:"address,omitempty"`
	Reachable bool   `json:"reachable"`
	Role      string `json:"role,omitempty"`
	Term      uint64 `json:"term,omitempty"`
}

// ClusterStatusResponse is the /api/v1/cluster/status reply
type ClusterStatusResponse struct {
	Status    Status           `json:"status"`
	NodeID    string           `json:"node_id"`
	Role      consensus.Role   `json:"role"`
	Term      uint64           `json:"term"`
	LeaderID  string           `json:"leader_id"`
	Commit    int64            `json:"commit_index"`
	Applied   int64            `json:"last_applied"`
	LogLength int64            `json:"log_length"`
	Movies    int              `json:"movies"`
	Bookings  int              `json:"bookings"`
	Payments  int              `json:"payments"`
	Peers     []NodeStatus     `json:"peers"`
	Metrics   map[string]int64 `json:"metrics,omitempty"`
}
