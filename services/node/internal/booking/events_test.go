package booking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received within 2s")
		return Event{}
	}
}

func TestEventsPublishedOnSuccess(t *testing.T) {
	m := NewStateMachine(nil)
	events, cancel := m.Subscribe(8)
	defer cancel()

	booked := applyCommand(t, m, &Command{
		Operation: OpBookTicket, RequestID: "a", Username: "user1",
		MovieID: "movie1", Seats: []int{1, 2},
	})

	event := receiveEvent(t, events)
	assert.Equal(t, EventBookingConfirmed, event.Type)
	assert.Equal(t, "user1", event.Username)
	assert.Equal(t, "movie1", event.MovieID)
	assert.Equal(t, booked.BookingID, event.BookingID)
	assert.Equal(t, []int{1, 2}, event.Seats)
	assert.Equal(t, testTime, event.Time)

	paid := applyCommand(t, m, &Command{
		Operation: OpProcessPayment, RequestID: "b", BookingID: booked.BookingID,
	})
	event = receiveEvent(t, events)
	assert.Equal(t, EventPaymentProcessed, event.Type)
	assert.Equal(t, paid.PaymentID, event.PaymentID)

	applyCommand(t, m, &Command{
		Operation: OpCancelBooking, RequestID: "c", Username: "user1",
		BookingID: booked.BookingID,
	})
	event = receiveEvent(t, events)
	assert.Equal(t, EventBookingCancelled, event.Type)
	assert.Equal(t, booked.BookingID, event.BookingID)
}

func TestNoEventOnRejection(t *testing.T) {
	m := NewStateMachine(nil)
	events, cancel := m.Subscribe(8)
	defer cancel()

	result := applyCommand(t, m, &Command{
		Operation: OpBookTicket, RequestID: "a", Username: "user1",
		MovieID: "movie9", Seats: []int{1},
	})
	require.Equal(t, StatusError, result.Status)

	select {
	case event := <-events:
		t.Fatalf("unexpected event %s for a rejected command", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelledSubscriptionStopsDelivery(t *testing.T) {
	m := NewStateMachine(nil)
	events, cancel := m.Subscribe(1)
	cancel()

	// publishing after cancel must not panic or block
	applyCommand(t, m, &Command{
		Operation: OpBookTicket, RequestID: "a", Username: "user1",
		MovieID: "movie1", Seats: []int{1},
	})

	_, open := <-events
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockApply(t *testing.T) {
	m := NewStateMachine(nil)
	_, cancel := m.Subscribe(1)
	defer cancel()

	// the buffer holds one event; further publishes are dropped, not queued
	cmds := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		data, err := (&Command{
			Operation: OpBookTicket,
			RequestID: fmt.Sprintf("req-%d", i),
			Username:  "user1", MovieID: "movie1", Seats: []int{i + 1},
			SubmittedAt: testTime,
		}).Encode()
		require.NoError(t, err)
		cmds = append(cmds, data)
	}

	done := make(chan struct{})
	go func() {
		for _, data := range cmds {
			m.Apply(data)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("apply blocked on a slow subscriber")
	}
}
