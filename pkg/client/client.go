// Package client talks to an aisle booking cluster. Every node exposes
// the same HTTP API; the client retries calls across all of them, caches
// the endpoint that last accepted a write and reissues writes with the
// same idempotency key so a retry is never applied twice.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// leaderFailureThreshold is how many consecutive failures against the
	// cached leader invalidate the cache.
	leaderFailureThreshold = 2

	backoffStep = 500 * time.Millisecond
	backoffCap  = 2 * time.Second

	defaultMaxAttempts    = 3
	defaultRequestTimeout = 15 * time.Second
	defaultDialTimeout    = 3 * time.Second
	assistTimeout         = 30 * time.Second
)

// ErrNotLoggedIn is returned by calls that need a session token before
// Login has succeeded.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrUnavailable is wrapped into the error returned when every endpoint
// has been tried for the full attempt budget without an accepting node.
var ErrUnavailable = errors.New("all endpoints unavailable")

// APIError is a reply the cluster produced but refused: bad credentials,
// a domain rejection ("Seat 5 not available") or a routing failure.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d error", e.StatusCode)
}

// NotLeader reports whether the reply names a non-leader node; the retry
// loop consumes these and moves to the next endpoint.
func (e *APIError) NotLeader() bool {
	return strings.Contains(e.Message, "Not the leader")
}

// NoLeader reports whether the node swept its peers without finding a
// leader, which usually means an election is in progress.
func (e *APIError) NoLeader() bool {
	return strings.Contains(e.Message, "No leader available")
}

// connError is a transport-level failure against one endpoint
type connError struct {
	endpoint string
	err      error
}

func (e *connError) Error() string { return fmt.Sprintf("%s: %v", e.endpoint, e.err) }
func (e *connError) Unwrap() error { return e.err }

// Config configures a cluster client.
type Config struct {
	// Endpoints are the client API base URLs of every cluster node,
	// e.g. "http://localhost:8081". Order is the read/fallback order.
	Endpoints []string

	// MaxAttempts is how many full passes over the endpoints a call makes
	// before giving up, sleeping with progressive backoff between passes.
	// Zero means 3.
	MaxAttempts int

	// RequestTimeout bounds a single HTTP exchange. Zero means 15s.
	RequestTimeout time.Duration

	// Token pre-authenticates the client with a previously issued session
	// token, e.g. one restored from the keyring.
	Token string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	endpoints      []string
	maxAttempts    int
	requestTimeout time.Duration
	http           *http.Client

	mu             sync.Mutex
	token          string
	username       string
	cachedLeader   string
	leaderFailures int
}

func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	endpoints := make([]string, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		endpoints[i] = strings.TrimRight(ep, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Client{
		endpoints:      endpoints,
		maxAttempts:    maxAttempts,
		requestTimeout: requestTimeout,
		http:           httpClient,
		token:          cfg.Token,
	}, nil
}

// Token returns the current session token, empty when logged out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken installs a session token issued elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Username returns the name used in the last successful Login.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Leader returns the cached write endpoint, empty when unknown.
func (c *Client) Leader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leaderFailures >= leaderFailureThreshold {
		return ""
	}
	return c.cachedLeader
}

// Endpoints returns the configured endpoint list.
func (c *Client) Endpoints() []string {
	out := make([]string, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// attemptOrder builds the endpoint order for one pass. Writes go to the
// cached leader first while its failure count stays under the threshold;
// reads use the configured order since any replica can serve them.
func (c *Client) attemptOrder(write bool) []string {
	if !write {
		return c.endpoints
	}

	c.mu.Lock()
	leader := c.cachedLeader
	valid := leader != "" && c.leaderFailures < leaderFailureThreshold
	c.mu.Unlock()

	if !valid {
		return c.endpoints
	}
	order := make([]string, 0, len(c.endpoints))
	order = append(order, leader)
	for _, ep := range c.endpoints {
		if ep != leader {
			order = append(order, ep)
		}
	}
	return order
}

func (c *Client) noteLeader(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedLeader = endpoint
	c.leaderFailures = 0
}

func (c *Client) noteLeaderFailure(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if endpoint != c.cachedLeader {
		return
	}
	c.leaderFailures++
	if c.leaderFailures >= leaderFailureThreshold {
		c.cachedLeader = ""
		c.leaderFailures = 0
	}
}

// retryable reports whether the failure should move the call to the next
// endpoint. Domain and auth rejections surface immediately; only routing
// signals and transport failures are worth another node.
func retryable(err error) bool {
	var ce *connError
	if errors.As(err, &ce) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.NotLeader() || ae.NoLeader()
	}
	return false
}

// do runs one API call with the full retry loop: every endpoint in order,
// then progressive backoff, up to maxAttempts passes. The caller's ctx
// bounds the whole loop.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, write bool, timeout time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		for _, endpoint := range c.attemptOrder(write) {
			err := c.once(ctx, method, endpoint, path, query, body, out, timeout)
			if err == nil {
				if write {
					c.noteLeader(endpoint)
				}
				return nil
			}
			if write {
				c.noteLeaderFailure(endpoint)
			}
			if !retryable(err) {
				return err
			}
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if attempt < c.maxAttempts {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.maxAttempts, lastErr)
}

// once performs a single HTTP exchange against one endpoint.
func (c *Client) once(ctx context.Context, method, endpoint, path string, query url.Values, body, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &connError{endpoint: endpoint, err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &connError{endpoint: endpoint, err: err}
	}

	// Every reply carries a status envelope; non-JSON bodies only occur
	// on transport-layer errors and fall through with the raw text.
	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Answer  string `json:"answer"`
	}
	_ = json.Unmarshal(data, &envelope)

	if resp.StatusCode >= 400 || envelope.Status == "error" || envelope.Status == "failure" {
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
		if msg == "" {
			msg = envelope.Answer
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Status: envelope.Status, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %v", err)
		}
	}
	return nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * backoffStep
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
