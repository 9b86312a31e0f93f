package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/aisleco/aisle-open/pkg/logger"
)

// WatchEvents streams live booking events from the first reachable node.
// The channel closes when the connection drops or ctx is cancelled; the
// caller reconnects by calling WatchEvents again.
func (c *Client) WatchEvents(ctx context.Context) (<-chan Event, error) {
	conn, err := c.dialSocket(ctx, "/ws/events")
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		go closeOnDone(ctx, conn)
		for {
			var event Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// WatchLogs tails one node's log stream. Same lifecycle as WatchEvents.
func (c *Client) WatchLogs(ctx context.Context) (<-chan logger.LogEntry, error) {
	conn, err := c.dialSocket(ctx, "/ws/logs")
	if err != nil {
		return nil, err
	}

	ch := make(chan logger.LogEntry, 64)
	go func() {
		defer close(ch)
		defer conn.Close()
		go closeOnDone(ctx, conn)
		for {
			var entry logger.LogEntry
			if err := conn.ReadJSON(&entry); err != nil {
				return
			}
			select {
			case ch <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// dialSocket opens a websocket against the first endpoint that accepts.
// Browsers cannot set headers on websocket requests so the token rides in
// the query string, matching what the server expects.
func (c *Client) dialSocket(ctx context.Context, path string) (*websocket.Conn, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		target := websocketURL(endpoint) + path + "?token=" + url.QueryEscape(token)
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			lastErr = &connError{endpoint: endpoint, err: err}
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func websocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return "ws://" + endpoint
	}
}

func closeOnDone(ctx context.Context, conn *websocket.Conn) {
	<-ctx.Done()
	conn.Close()
}
