package booking

import (
	"encoding/json"
	"time"
)

// Operations accepted by the state machine
const (
	OpBookTicket     = "book_ticket"
	OpCancelBooking  = "cancel_booking"
	OpProcessPayment = "process_payment"
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Booking statuses
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Command is the replicated write envelope. RequestID is the client's
// idempotency key; SubmittedAt is stamped once before replication so every
// replica applies identical bytes and ends with identical timestamps.
type Command struct {
	Operation     string    `json:"operation"`
	RequestID     string    `json:"request_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	MovieID       string    `json:"movie_id,omitempty"`
	Seats         []int     `json:"seats,omitempty"`
	BookingID     string    `json:"booking_id,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at,omitempty"`
}

// Encode serializes the command for the replicated log
func (c *Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Booking is a confirmed or cancelled seat reservation
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

// Payment records a completed payment against a booking
type Payment struct {
	PaymentID string    `json:"payment_id"`
	BookingID string    `json:"booking_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the applied outcome of a command. A domain rejection is a
// Result with status "error", not a consensus failure; every replica
// computes the same Result for the same committed command.
type Result struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	BookingID    string   `json:"booking_id,omitempty"`
	PaymentID    string   `json:"payment_id,omitempty"`
	RefundAmount float64  `json:"refund_amount,omitempty"`
	Details      *Booking `json:"details,omitempty"`
}

// Encode serializes the result as returned through the consensus layer
func (r *Result) Encode() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// Result contains only marshalable fields; this cannot happen
		return []byte(`{"status":"error","message":"internal encoding failure"}`)
	}
	return data
}

// DecodeResult parses a state machine result
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func errorResult(message string) *Result {
	return &Result{Status: StatusError, Message: message}
}
