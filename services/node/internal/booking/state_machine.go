package booking

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/aisleco/aisle-open/pkg/logger"
)

// appliedHistoryLimit bounds the idempotency history. A retry older than
// the last 1024 writes is no longer recognized as a duplicate.
const appliedHistoryLimit = 1024

// appliedRequests is a bounded FIFO of request IDs and their results,
// replicated implicitly because every node applies the same commands.
type appliedRequests struct {
	limit   int
	order   []string
	results map[string][]byte
}

func newAppliedRequests(limit int) *appliedRequests {
	return &appliedRequests{
		limit:   limit,
		results: make(map[string][]byte, limit),
	}
}

func (a *appliedRequests) lookup(id string) ([]byte, bool) {
	data, ok := a.results[id]
	return data, ok
}

func (a *appliedRequests) remember(id string, result []byte) {
	if _, ok := a.results[id]; ok {
		return
	}
	a.results[id] = result
	a.order = append(a.order, id)
	if len(a.order) > a.limit {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.results, oldest)
	}
}

// StateMachine holds the booking state every replica derives from the
// committed log. Apply is deterministic: timestamps come from the command,
// never from the local clock, and iteration orders are fixed.
type StateMachine struct {
	mu             sync.RWMutex
	movies         map[string]*Movie
	movieOrder     []string
	bookings       map[string]*Booking
	bookingOrder   []string
	payments       map[string]*Payment
	paymentOrder   []string
	bookingCounter int
	paymentCounter int
	applied        *appliedRequests

	events *eventHub
	logger *logger.Logger

	metrics struct {
		commandsApplied      int64
		duplicatesSuppressed int64
		commandsRejected     int64
	}
}

// NewStateMachine returns a state machine seeded with the demo catalog
func NewStateMachine(log *logger.Logger) *StateMachine {
	movies, order := seedCatalog()
	return &StateMachine{
		movies:     movies,
		movieOrder: order,
		bookings:   make(map[string]*Booking),
		payments:   make(map[string]*Payment),
		applied:    newAppliedRequests(appliedHistoryLimit),
		events:     newEventHub(),
		logger:     log,
	}
}

// Apply executes one committed command and returns its encoded Result.
// A replayed request ID returns the remembered result without reapplying.
func (m *StateMachine) Apply(command []byte) []byte {
	var cmd Command
	if err := json.Unmarshal(command, &cmd); err != nil {
		atomic.AddInt64(&m.metrics.commandsRejected, 1)
		return errorResult(fmt.Sprintf("invalid command: %v", err)).Encode()
	}

	m.mu.Lock()
	if cmd.RequestID != "" {
		if cached, ok := m.applied.lookup(cmd.RequestID); ok {
			m.mu.Unlock()
			atomic.AddInt64(&m.metrics.duplicatesSuppressed, 1)
			if m.logger != nil {
				m.logger.Debugf("Suppressed duplicate command %s (%s)", cmd.RequestID, cmd.Operation)
			}
			return cached
		}
	}

	var result *Result
	switch cmd.Operation {
	case OpBookTicket:
		result = m.bookTicketLocked(&cmd)
	case OpCancelBooking:
		result = m.cancelBookingLocked(&cmd)
	case OpProcessPayment:
		result = m.processPaymentLocked(&cmd)
	default:
		result = errorResult("Unknown operation")
	}

	encoded := result.Encode()
	if cmd.RequestID != "" {
		m.applied.remember(cmd.RequestID, encoded)
	}
	m.mu.Unlock()

	atomic.AddInt64(&m.metrics.commandsApplied, 1)
	if result.Status == StatusError {
		atomic.AddInt64(&m.metrics.commandsRejected, 1)
	} else {
		m.publishEvent(&cmd, result)
	}
	return encoded
}

func (m *StateMachine) bookTicketLocked(cmd *Command) *Result {
	movie, ok := m.movies[cmd.MovieID]
	if !ok {
		return errorResult("Movie not found")
	}

	// validate everything before touching inventory so a rejected booking
	// leaves state untouched; a seat repeated in one request is only
	// available once
	available := make(map[int]bool, len(movie.AvailableSeats))
	for _, seat := range movie.AvailableSeats {
		available[seat] = true
	}
	for _, seat := range cmd.Seats {
		if !available[seat] {
			return errorResult(fmt.Sprintf("Seat %d not available", seat))
		}
		available[seat] = false
	}

	kept := make([]int, 0, len(movie.AvailableSeats)-len(cmd.Seats))
	for _, seat := range movie.AvailableSeats {
		if available[seat] {
			kept = append(kept, seat)
		}
	}
	movie.AvailableSeats = kept

	m.bookingCounter++
	bookingID := fmt.Sprintf("BK%06d", m.bookingCounter)
	b := &Booking{
		BookingID:  bookingID,
		Username:   cmd.Username,
		MovieID:    cmd.MovieID,
		MovieTitle: movie.Title,
		Seats:      append([]int(nil), cmd.Seats...),
		Price:      movie.Price * float64(len(cmd.Seats)),
		Status:     BookingConfirmed,
		Timestamp:  cmd.SubmittedAt,
	}
	m.bookings[bookingID] = b
	m.bookingOrder = append(m.bookingOrder, bookingID)

	return &Result{
		Status:    StatusSuccess,
		Message:   "Booking confirmed",
		BookingID: bookingID,
		Details:   copyBooking(b),
	}
}

func (m *StateMachine) cancelBookingLocked(cmd *Command) *Result {
	b, ok := m.bookings[cmd.BookingID]
	if !ok {
		return errorResult("Booking not found")
	}
	if b.Username != cmd.Username {
		return errorResult("Unauthorized")
	}
	if b.Status == BookingCancelled {
		return errorResult("Already cancelled")
	}

	movie := m.movies[b.MovieID]
	movie.AvailableSeats = append(movie.AvailableSeats, b.Seats...)
	sort.Ints(movie.AvailableSeats)
	b.Status = BookingCancelled

	return &Result{
		Status:       StatusSuccess,
		Message:      "Booking cancelled",
		BookingID:    b.BookingID,
		RefundAmount: b.Price,
	}
}

func (m *StateMachine) processPaymentLocked(cmd *Command) *Result {
	b, ok := m.bookings[cmd.BookingID]
	if !ok {
		return errorResult("Booking not found")
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = "card"
	}

	m.paymentCounter++
	paymentID := fmt.Sprintf("PAY%06d", m.paymentCounter)
	m.payments[paymentID] = &Payment{
		PaymentID: paymentID,
		BookingID: b.BookingID,
		Amount:    b.Price,
		Method:    method,
		Status:    "completed",
		Timestamp: cmd.SubmittedAt,
	}
	m.paymentOrder = append(m.paymentOrder, paymentID)

	return &Result{
		Status:    StatusSuccess,
		Message:   "Payment processed",
		PaymentID: paymentID,
	}
}

// Movies lists the catalog in fixed order with live availability counts
func (m *StateMachine) Movies() []MovieSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MovieSummary, 0, len(m.movieOrder))
	for _, id := range m.movieOrder {
		movie := m.movies[id]
		out = append(out, MovieSummary{
			ID:             id,
			Title:          movie.Title,
			AvailableSeats: len(movie.AvailableSeats),
			TotalSeats:     movie.TotalSeats,
			Price:          movie.Price,
			Showtime:       movie.Showtime,
		})
	}
	return out
}

// AvailableSeats returns the free seats of a movie in ascending order.
// Unknown movies report an empty list.
func (m *StateMachine) AvailableSeats(movieID string) ([]int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movie, ok := m.movies[movieID]
	if !ok {
		return []int{}, false
	}
	return append([]int(nil), movie.AvailableSeats...), true
}

// UserBookings returns the user's bookings in creation order
func (m *StateMachine) UserBookings(username string) []*Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Booking
	for _, id := range m.bookingOrder {
		b := m.bookings[id]
		if b.Username == username {
			out = append(out, copyBooking(b))
		}
	}
	return out
}

// Payments returns all payments in creation order
func (m *StateMachine) Payments() []*Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Payment, 0, len(m.paymentOrder))
	for _, id := range m.paymentOrder {
		p := *m.payments[id]
		out = append(out, &p)
	}
	return out
}

// Counts reports catalog, booking and payment totals for status surfaces
func (m *StateMachine) Counts() (movies, bookings, payments int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.movies), len(m.bookings), len(m.payments)
}

// Metrics returns cumulative counters for the metrics loop
func (m *StateMachine) Metrics() map[string]int64 {
	return map[string]int64{
		"commands_applied":      atomic.LoadInt64(&m.metrics.commandsApplied),
		"commands_rejected":     atomic.LoadInt64(&m.metrics.commandsRejected),
		"duplicates_suppressed": atomic.LoadInt64(&m.metrics.duplicatesSuppressed),
	}
}

func copyBooking(b *Booking) *Booking {
	out := *b
	out.Seats = append([]int(nil), b.Seats...)
	return &out
}
