package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTransport delivers consensus RPCs as JSON over HTTP. Peer addresses
// map node IDs to base URLs such as "http://localhost:9081".
type HTTPTransport struct {
	client *http.Client
	peers  map[string]string
}

// NewHTTPTransport creates a transport for the given peer address map
func NewHTTPTransport(peers map[string]string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	addrs := make(map[string]string, len(peers))
	for id, addr := range peers {
		addrs[id] = addr
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		peers:  addrs,
	}
}

func (t *HTTPTransport) post(ctx context.Context, target, path string, req, reply interface{}) error {
	base, ok := t.peers[target]
	if !ok {
		return fmt.Errorf("unknown peer %s", target)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("peer %s is unreachable: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("peer %s returned status %d: %s", target, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("failed to decode reply from %s: %v", target, err)
	}
	return nil
}

func (t *HTTPTransport) RequestVote(ctx context.Context, target string, req *VoteRequest) (*VoteReply, error) {
	var reply VoteReply
	if err := t.post(ctx, target, "/raft/v1/request-vote", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (t *HTTPTransport) AppendEntries(ctx context.Context, target string, req *AppendRequest) (*AppendReply, error) {
	var reply AppendReply
	if err := t.post(ctx, target, "/raft/v1/append-entries", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
