package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/logger"
	"github.com/aisleco/aisle-open/services/node/internal/auth"
	"github.com/aisleco/aisle-open/services/node/internal/booking"
	"github.com/aisleco/aisle-open/services/node/internal/consensus"
)

func testLogger() *logger.Logger {
	log := logger.New("node-test", "1.0.0")
	log.DisableConsoleOutput()
	return log
}

func consensusTestConfig(id string, peers []string) consensus.Config {
	return consensus.Config{
		NodeID:             id,
		Peers:              peers,
		ElectionTimeoutMin: 50 * time.Millisecond,
		ElectionTimeoutMax: 100 * time.Millisecond,
		HeartbeatInterval:  25 * time.Millisecond,
		RPCTimeout:         50 * time.Millisecond,
		SubmitTimeout:      2 * time.Second,
	}
}

// newTestEngine builds an engine around a single-node cluster that
// elects itself leader, so writes commit locally.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.New()
	e := NewEngine(cfg)
	e.nodeID = "node1"
	e.machine = booking.NewStateMachine(nil)

	manager, err := auth.NewManager(cfg, nil, nil)
	require.NoError(t, err)
	e.auth = manager

	network := consensus.NewLocalNetwork()
	node, err := consensus.NewNode(consensusTestConfig("node1", nil), network.Transport("node1"), nil, e.machine, testLogger())
	require.NoError(t, err)
	network.Register("node1", node)
	e.node = node

	node.Start()
	t.Cleanup(node.Stop)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !node.IsLeader() {
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, node.IsLeader(), "single node did not become leader")
	return e
}

// newFollowerEngine builds an engine whose node is never started and so
// never wins an election; every write hits the non-leader path.
func newFollowerEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.New()
	e := NewEngine(cfg)
	e.nodeID = "node2"
	e.machine = booking.NewStateMachine(nil)

	manager, err := auth.NewManager(cfg, nil, nil)
	require.NoError(t, err)
	e.auth = manager

	network := consensus.NewLocalNetwork()
	node, err := consensus.NewNode(consensusTestConfig("node2", []string{"node1", "node3"}), network.Transport("node2"), nil, e.machine, testLogger())
	require.NoError(t, err)
	e.node = node
	return e
}

func doJSON(t *testing.T, method, target, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func loginAs(t *testing.T, ts *httptest.Server, username, password string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login LoginResponse
	require.NoError(t, json.Unmarshal(body, &login))
	require.NotEmpty(t, login.Token)
	return login.Token
}

func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "node", health["service"])
	assert.Equal(t, "node1", health["node_id"])
}

func TestLoginEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()

	t.Run("missing fields", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", LoginRequest{Username: "user1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad credentials", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", LoginRequest{Username: "user1", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var login LoginResponse
		require.NoError(t, json.Unmarshal(body, &login))
		assert.Equal(t, StatusError, login.Status)
		assert.Empty(t, login.Token)
	})

	t.Run("good credentials", func(t *testing.T) {
		token := loginAs(t, ts, "user1", "password1")
		assert.NotEmpty(t, token)
	})
}

func TestAuthenticationGate(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()

	t.Run("missing token", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, StatusFailure, errResp.Status)
		assert.Equal(t, "Authorization token is required", errResp.Message)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token passes", func(t *testing.T) {
		token := loginAs(t, ts, "user1", "password1")
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestQueryEndpoints(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	t.Run("movie list", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply GetResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Equal(t, StatusSuccess, reply.Status)
		require.Len(t, reply.Items, 3)
		assert.Equal(t, "movie1", reply.Items[0].ID)

		var movie booking.MovieSummary
		require.NoError(t, json.Unmarshal(reply.Items[0].Data, &movie))
		assert.Equal(t, "The Matrix Reloaded", movie.Title)
		assert.Equal(t, 100, movie.AvailableSeats)
	})

	t.Run("available seats", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=available_seats&movie_id=movie2", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply GetResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		require.Len(t, reply.Items, 1)

		var data struct {
			AvailableSeats []int `json:"available_seats"`
		}
		require.NoError(t, json.Unmarshal(reply.Items[0].Data, &data))
		assert.Len(t, data.AvailableSeats, 80)
	})

	t.Run("my bookings starts empty", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=my_bookings", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply GetResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Empty(t, reply.Items)
	})

	t.Run("unknown query type", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=everything", token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var reply GetResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Equal(t, "Unknown query type", reply.Message)
	})
}

func TestCommandLifecycle(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	var bookingID string

	t.Run("book", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "book_ticket", MovieID: "movie1", Seats: []int{1, 2},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		require.Equal(t, StatusSuccess, reply.Status)

		result, err := booking.DecodeResult([]byte(reply.Message))
		require.NoError(t, err)
		assert.Equal(t, "BK000001", result.BookingID)
		require.NotNil(t, result.Details)
		assert.Equal(t, "user1", result.Details.Username)
		assert.Equal(t, 30.0, result.Details.Price)
		bookingID = result.BookingID
	})

	t.Run("booking shows up in my bookings", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=my_bookings", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply GetResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		require.Len(t, reply.Items, 1)
		assert.Equal(t, bookingID, reply.Items[0].ID)
	})

	t.Run("pay", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "payment", BookingID: bookingID, PaymentMethod: "upi",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		require.Equal(t, StatusSuccess, reply.Status)

		result, err := booking.DecodeResult([]byte(reply.Message))
		require.NoError(t, err)
		assert.Equal(t, "PAY000001", result.PaymentID)
	})

	t.Run("cancel", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "cancel_booking", BookingID: bookingID,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		require.Equal(t, StatusSuccess, reply.Status)

		result, err := booking.DecodeResult([]byte(reply.Message))
		require.NoError(t, err)
		assert.Equal(t, 30.0, result.RefundAmount)
	})

	t.Run("domain rejection is a structured error", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "cancel_booking", BookingID: "BK999999",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Equal(t, StatusError, reply.Status)
		assert.Equal(t, "Booking not found", reply.Message)
	})

	t.Run("unknown operation type", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{Type: "teleport"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Equal(t, "Unknown operation type", reply.Message)
	})

	t.Run("invalid body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/command", strings.NewReader("{broken"))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWritesRejectedWhenNotLeader(t *testing.T) {
	follower := newFollowerEngine(t)
	ts := httptest.NewServer(NewServer(follower))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	t.Run("no routers available", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "book_ticket", MovieID: "movie1", Seats: []int{1},
		})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.Equal(t, StatusError, reply.Status)
		assert.Contains(t, reply.Message, "No leader available")
	})

	t.Run("already forwarded writes are not forwarded again", func(t *testing.T) {
		payload, err := json.Marshal(CommandRequest{Type: "book_ticket", MovieID: "movie1", Seats: []int{1}})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/command", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(forwardedHeader, "1")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var reply StatusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
		assert.Equal(t, StatusError, reply.Status)
		assert.Contains(t, reply.Message, "Not the leader")
	})
}

// TestWriteForwardedToLeader drives a write into a non-leader node and
// expects the answer to come back from the leader through the router
// fan-out.
func TestWriteForwardedToLeader(t *testing.T) {
	leaderEngine := newTestEngine(t)
	leaderTS := httptest.NewServer(NewServer(leaderEngine))
	defer leaderTS.Close()

	follower := newFollowerEngine(t)
	follower.routerAddrs = map[string]string{"node1": leaderTS.URL}
	follower.routerOrder = []string{"node1"}
	followerTS := httptest.NewServer(NewServer(follower))
	defer followerTS.Close()

	token := loginAs(t, followerTS, "user1", "password1")

	resp, body := doJSON(t, http.MethodPost, followerTS.URL+"/api/v1/command", token, CommandRequest{
		Type: "book_ticket", MovieID: "movie1", Seats: []int{42},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply StatusResponse
	require.NoError(t, json.Unmarshal(body, &reply))
	require.Equal(t, StatusSuccess, reply.Status)

	result, err := booking.DecodeResult([]byte(reply.Message))
	require.NoError(t, err)
	assert.Equal(t, "BK000001", result.BookingID)

	// the write landed on the leader's state machine
	require.Len(t, leaderEngine.machine.UserBookings("user1"), 1)
	assert.Empty(t, follower.machine.UserBookings("user1"))
}

func TestClusterStatusEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()

	// cluster status requires no authentication
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/cluster/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status ClusterStatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "node1", status.NodeID)
	assert.Equal(t, consensus.RoleLeader, status.Role)
	assert.Equal(t, "node1", status.LeaderID)
	assert.Equal(t, 3, status.Movies)
	assert.NotNil(t, status.Metrics)
}

func TestAssistProxy(t *testing.T) {
	forwarded := make(chan map[string]string, 1)
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		forwarded <- req

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"request_id": req["request_id"],
			"status":     "success",
			"answer":     "To cancel a booking, use the cancel command.",
		})
	}))
	defer stub.Close()

	e := newTestEngine(t)
	e.assistURL = stub.URL
	ts := httptest.NewServer(NewServer(e))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/assist", token, AssistRequest{
		Query:   "how do I cancel",
		Context: "Customer support query",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply AssistResponse
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, StatusSuccess, reply.Status)
	assert.Contains(t, reply.Answer, "cancel")

	req := <-forwarded
	assert.Equal(t, "how do I cancel", req["query"])
	assert.NotEmpty(t, req["request_id"])
	// the proxy enriches the context with the caller's state
	assert.Contains(t, req["context"], "Customer support query")
	assert.Contains(t, req["context"], "Current System State")
	assert.Contains(t, req["context"], "User: user1")
}

func TestAssistUnavailable(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	stub.Close()

	e := newTestEngine(t)
	e.assistURL = stub.URL
	ts := httptest.NewServer(NewServer(e))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/assist", token, AssistRequest{Query: "hello"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var reply AssistResponse
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, StatusError, reply.Status)
	assert.Contains(t, reply.Answer, "LLM service unavailable")
}

func TestLogoutEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(newTestEngine(t)))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply StatusResponse
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, StatusSuccess, reply.Status)

	// the revoked token no longer authenticates
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/query?type=movie_list", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsWebSocket(t *testing.T) {
	e := newTestEngine(t)
	ts := httptest.NewServer(NewServer(e))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	t.Run("rejects missing token", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("streams committed events", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?token=" + url.QueryEscape(token)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		// give the handler a moment to subscribe before the write commits
		time.Sleep(100 * time.Millisecond)

		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/command", token, CommandRequest{
			Type: "book_ticket", MovieID: "movie1", Seats: []int{7},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event booking.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, booking.EventBookingConfirmed, event.Type)
		assert.Equal(t, "user1", event.Username)
		assert.Equal(t, []int{7}, event.Seats)
	})
}

func TestLogsWebSocket(t *testing.T) {
	e := newTestEngine(t)
	e.logger = testLogger()
	ts := httptest.NewServer(NewServer(e))
	defer ts.Close()
	token := loginAs(t, ts, "user1", "password1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/logs?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)

	// any authenticated request writes a log line
	loginAs(t, ts, "user2", "password2")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var entry logger.LogEntry
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "node-test", entry.Service)
	assert.NotEmpty(t, entry.Message)
}
