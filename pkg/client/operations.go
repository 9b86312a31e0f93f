package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Login authenticates against any reachable node and stores the session
// token for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil,
		LoginRequest{Username: username, Password: password}, &resp, false, c.requestTimeout)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.username = username
	c.mu.Unlock()
	return nil
}

// Logout revokes the session token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return ErrNotLoggedIn
	}

	var resp StatusResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, &resp, false, c.requestTimeout)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = ""
	c.username = ""
	c.mu.Unlock()
	return nil
}

// Movies lists the catalog with per-movie seat availability.
func (c *Client) Movies(ctx context.Context) ([]Movie, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp GetResponse
	query := url.Values{"type": {"movie_list"}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/query", query, nil, &resp, false, c.requestTimeout); err != nil {
		return nil, err
	}

	movies := make([]Movie, 0, len(resp.Items))
	for _, item := range resp.Items {
		var m Movie
		if err := json.Unmarshal(item.Data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode movie %s: %v", item.ID, err)
		}
		movies = append(movies, m)
	}
	return movies, nil
}

// AvailableSeats lists the free seat numbers of one movie. An unknown
// movie id yields an empty list.
func (c *Client) AvailableSeats(ctx context.Context, movieID string) ([]int, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp GetResponse
	query := url.Values{"type": {"available_seats"}, "movie_id": {movieID}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/query", query, nil, &resp, false, c.requestTimeout); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	var data struct {
		AvailableSeats []int `json:"available_seats"`
	}
	if err := json.Unmarshal(resp.Items[0].Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seats: %v", err)
	}
	return data.AvailableSeats, nil
}

// MyBookings lists the calling user's bookings in creation order.
func (c *Client) MyBookings(ctx context.Context) ([]Booking, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp GetResponse
	query := url.Values{"type": {"my_bookings"}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/query", query, nil, &resp, false, c.requestTimeout); err != nil {
		return nil, err
	}

	bookings := make([]Booking, 0, len(resp.Items))
	for _, item := range resp.Items {
		var b Booking
		if err := json.Unmarshal(item.Data, &b); err != nil {
			return nil, fmt.Errorf("failed to decode booking %s: %v", item.ID, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// Book reserves seats for a movie and returns the confirmed booking.
func (c *Client) Book(ctx context.Context, movieID string, seats []int) (*Result, error) {
	return c.submit(ctx, CommandRequest{
		Type:      "book_ticket",
		RequestID: uuid.NewString(),
		MovieID:   movieID,
		Seats:     seats,
	})
}

// Cancel cancels a booking and returns the refund amount.
func (c *Client) Cancel(ctx context.Context, bookingID string) (*Result, error) {
	return c.submit(ctx, CommandRequest{
		Type:      "cancel_booking",
		RequestID: uuid.NewString(),
		BookingID: bookingID,
	})
}

// Pay records a payment for a booking. An empty method defaults to card.
func (c *Client) Pay(ctx context.Context, bookingID, method string) (*Result, error) {
	return c.submit(ctx, CommandRequest{
		Type:          "payment",
		RequestID:     uuid.NewString(),
		BookingID:     bookingID,
		PaymentMethod: method,
	})
}

// submit sends one write through the leader-cached retry path. The
// request id in cmd stays fixed across every retry, so the cluster
// applies the command at most once no matter how many nodes see it.
func (c *Client) submit(ctx context.Context, cmd CommandRequest) (*Result, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/command", nil, cmd, &resp, true, c.requestTimeout); err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Message), &result); err != nil {
		return nil, fmt.Errorf("failed to decode command result: %v", err)
	}
	return &result, nil
}

// Ask forwards a help question to the cluster's assist service.
func (c *Client) Ask(ctx context.Context, query string) (string, error) {
	if c.Token() == "" {
		return "", ErrNotLoggedIn
	}

	var resp AssistResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/assist", nil,
		AssistRequest{Query: query, Context: "Customer support query"}, &resp, false, assistTimeout)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// ClusterStatus reports consensus and state machine standing as seen by
// whichever node answers first.
func (c *Client) ClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	var resp ClusterStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/cluster/status", nil, nil, &resp, false, c.requestTimeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeStatusOf queries one specific endpoint's view of the cluster,
// bypassing the retry loop. Useful for per-node inspection.
func (c *Client) NodeStatusOf(ctx context.Context, endpoint string) (*ClusterStatus, error) {
	var resp ClusterStatus
	if err := c.once(ctx, http.MethodGet, endpoint, "/api/v1/cluster/status", nil, nil, &resp, c.requestTimeout); err != nil {
		return nil, err
	}
	return &resp, nil
}
