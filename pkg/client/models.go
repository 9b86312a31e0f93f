package client

import (
	"encoding/json"
	"time"
)

// LoginRequest carries user credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the session token
type LoginResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// StatusResponse is the generic status/message reply used by write
// operations. On success Message carries the JSON-encoded result.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DataItem is one row of a query result
type DataItem struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// GetResponse is the query reply
type GetResponse struct {
	Status  string     `json:"status"`
	Items   []DataItem `json:"items"`
	Message string     `json:"message"`
}

// CommandRequest is a write submitted to the cluster. RequestID is the
// idempotency key; it is minted once per logical call and reused verbatim
// on every retry so a replay is applied at most once.
type CommandRequest struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id,omitempty"`
	MovieID       string `json:"movie_id,omitempty"`
	Seats         []int  `json:"seats,omitempty"`
	BookingID     string `json:"booking_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// AssistRequest asks the cluster's assist service a question
type AssistRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

// AssistResponse carries the assist answer
type AssistResponse struct {
	Status string `json:"status"`
	Answer string `json:"answer"`
}

// Movie is one row of the movie catalog
type Movie struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	AvailableSeats int     `json:"available_seats"`
	TotalSeats     int     `json:"total_seats"`
	Price          float64 `json:"price"`
	Showtime       string  `json:"showtime"`
}

// Booking is a seat reservation as stored by the cluster
type Booking struct {
	BookingID  string    `json:"booking_id"`
	Username   string    `json:"username"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Seats      []int     `json:"seats"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the decoded outcome of a successful write
type Result struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	BookingID    string   `json:"booking_id,omitempty"`
	PaymentID    string   `json:"payment_id,omitempty"`
	RefundAmount float64  `json:"refund_amount,omitempty"`
	Details      *Booking `json:"details,omitempty"`
}

// Event is one entry of a node's live booking event stream
type Event struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	MovieID   string    `json:"movie_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	Seats     []int     `json:"seats,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// NodeStatus describes one cluster member as reported by a peer
type NodeStatus struct {
	NodeID    string `json:"node_id"`
	Address   string `json:"address,omitempty"`
	Reachable bool   `json:"reachable"`
	Role      string `json:"role,omitempty"`
	Term      uint64 `json:"term,omitempty"`
}

// ClusterStatus is the cluster introspection reply from one node
type ClusterStatus struct {
	Status    string           `json:"status"`
	NodeID    string           `json:"node_id"`
	Role      string           `json:"role"`
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
