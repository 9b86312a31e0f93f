package booking

import (
	"sync"
	"time"
)

// Event types published after successful command application
const (
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventPaymentProcessed = "payment_processed"
)

// Event is a state change notification for live subscribers
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

// eventHub fans events out to subscribers. Sends never block; a slow
// subscriber misses events rather than stalling the applier.
type eventHub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[chan Event]struct{})}
}

func (h *eventHub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *eventHub) publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a live event listener. The returned cancel func
// must be called to release the subscription.
func (m *StateMachine) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}

func (m *StateMachine) publishEvent(cmd *Command, result *Result) {
	event := Event{
		Username: cmd.Username,
		Message:  result.Message,
		Time:     cmd.SubmittedAt,
	}
	switch cmd.Operation {
	case OpBookTicket:
		event.Type = EventBookingConfirmed
		event.MovieID = cmd.MovieID
		event.BookingID = result.BookingID
		event.Seats = append([]int(nil), cmd.Seats...)
	case OpCancelBooking:
		event.Type = EventBookingCancelled
		event.BookingID = cmd.BookingID
	case OpProcessPayment:
		event.Type = EventPaymentProcessed
		event.BookingID = cmd.BookingID
		event.PaymentID = result.PaymentID
	default:
		return
	}
	m.events.publish(event)
}
