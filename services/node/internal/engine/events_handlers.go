package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventsHandlers streams live booking events and node logs over WebSocket
type EventsHandlers struct {
	engine   *Engine
	upgrader websocket.Upgrader
}

// NewEventsHandlers creates a new instance of EventsHandlers
func NewEventsHandlers(engine *Engine) *EventsHandlers {
	return &EventsHandlers{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// authenticate validates the token carried in the query string (browser
// WebSocket clients cannot set an Authorization header) or the header.
func (eh *EventsHandlers) authenticate(w http.ResponseWriter, r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = extractBearerToken(r)
	}
	if token == "" {
		http.Error(w, "Authorization token is required", http.StatusUnauthorized)
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if _, err := eh.engine.auth.Validate(ctx, token); err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return false
	}
	return true
}

// Events handles GET /ws/events
func (eh *EventsHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if !eh.authenticate(w, r) {
		return
	}

	conn, err := eh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if eh.engine.logger != nil {
			eh.engine.logger.Warnf("Failed to upgrade events connection: %v", err)
		}
		return
	}
	defer conn.Close()

	events, cancel := eh.engine.machine.Subscribe(64)
	defer cancel()

	done := make(chan struct{})
	go discardReads(conn, done)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Logs handles GET /ws/logs, tailing this node's log stream
func (eh *EventsHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	if !eh.authenticate(w, r) {
		return
	}
	if eh.engine.logger == nil {
		http.Error(w, "log streaming unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := eh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		eh.engine.logger.Warnf("Failed to upgrade logs connection: %v", err)
		return
	}
	defer conn.Close()

	entries := eh.engine.logger.Subscribe()
	defer eh.engine.logger.Unsubscribe(entries)

	done := make(chan struct{})
	go discardReads(conn, done)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case entry := <-entries:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// discardReads drains the connection until the client goes away
func discardReads(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
