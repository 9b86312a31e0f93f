package consensus

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers every RPC affirmatively at the request's term
type echoHandler struct{}

func (echoHandler) HandleRequestVote(req *VoteRequest) *VoteReply {
	return &VoteReply{From: req.To, To: req.From, Term: req.Term, VoteGranted: true}
}

func (echoHandler) HandleAppendEntries(req *AppendRequest) *AppendReply {
	return &AppendReply{From: req.To, To: req.From, Term: req.Term, EntryAppended: true, MatchIndex: req.PrevLogIndex}
}

func TestLocalNetworkDelivery(t *testing.T) {
	network := NewLocalNetwork()
	network.Register("a", echoHandler{})
	network.Register("b", echoHandler{})

	fromA := network.Transport("a")
	ctx := context.Background()

	reply, err := fromA.RequestVote(ctx, "b", &VoteRequest{From: "a", To: "b", Term: 1})
	require.NoError(t, err)
	assert.True(t, reply.VoteGranted)
	assert.Equal(t, "b", reply.From)

	// unregistered targets are unreachable
	_, err = fromA.RequestVote(ctx, "c", &VoteRequest{From: "a", To: "c", Term: 1})
	assert.Error(t, err)
}

func TestLocalNetworkPartitionAndHeal(t *testing.T) {
	network := NewLocalNetwork()
	network.Register("a", echoHandler{})
	network.Register("b", echoHandler{})
	network.Register("c", echoHandler{})

	fromA := network.Transport("a")
	fromB := network.Transport("b")
	ctx := context.Background()

	network.Partition("a", "b")

	_, err := fromA.AppendEntries(ctx, "b", &AppendRequest{From: "a", To: "b", Term: 1})
	assert.Error(t, err)
	_, err = fromB.AppendEntries(ctx, "a", &AppendRequest{From: "b", To: "a", Term: 1})
	assert.Error(t, err)

	// the unaffected link still works
	_, err = fromA.AppendEntries(ctx, "c", &AppendRequest{From: "a", To: "c", Term: 1})
	assert.NoError(t, err)

	network.Heal("a", "b")
	_, err = fromA.AppendEntries(ctx, "b", &AppendRequest{From: "a", To: "b", Term: 1})
	assert.NoError(t, err)
}

func TestLocalNetworkIsolate(t *testing.T) {
	network := NewLocalNetwork()
	network.Register("a", echoHandler{})
	network.Register("b", echoHandler{})
	network.Register("c", echoHandler{})

	network.Isolate("a")
	ctx := context.Background()

	_, err := network.Transport("a").RequestVote(ctx, "b", &VoteRequest{From: "a", To: "b", Term: 1})
	assert.Error(t, err)
	_, err = network.Transport("c").RequestVote(ctx, "a", &VoteRequest{From: "c", To: "a", Term: 1})
	assert.Error(t, err)

	// the others still talk to each other
	_, err = network.Transport("b").RequestVote(ctx, "c", &VoteRequest{From: "b", To: "c", Term: 1})
	assert.NoError(t, err)

	network.HealAll()
	_, err = network.Transport("a").RequestVote(ctx, "b", &VoteRequest{From: "a", To: "b", Term: 1})
	assert.NoError(t, err)
}

// TestHTTPTransportRoundTrip drives a real node's RPC handlers through
// the peer server and the HTTP transport, covering the wire codec both
// ways.
func TestHTTPTransportRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveEntries([]LogEntry{{Term: 1, Index: 0, Command: []byte("a")}}))
	node := newIdleNode(t, "node2", []string{"node1", "node3"}, store)

	peer := NewPeerServer(node, testLogger(), 0)
	ts := httptest.NewServer(peer.server.Handler)
	defer ts.Close()

	transport := NewHTTPTransport(map[string]string{"node2": ts.URL}, 0)
	ctx := context.Background()

	vote, err := transport.RequestVote(ctx, "node2", &VoteRequest{
		From: "node1", To: "node2", Term: 2, LastLogIndex: 0, LastLogTerm: 1,
	})
	require.NoError(t, err)
	assert.True(t, vote.VoteGranted)
	assert.Equal(t, uint64(2), vote.Term)
	assert.Equal(t, "node2", vote.From)

	reply, err := transport.AppendEntries(ctx, "node2", &AppendRequest{
		From: "node1", To: "node2", Term: 2, PrevLogIndex: 0, PrevLogTerm: 1,
		Entries: []LogEntry{{Term: 2, Command: []byte("b")}},
	})
	require.NoError(t, err)
	assert.True(t, reply.EntryAppended)
	assert.Equal(t, int64(1), reply.MatchIndex)
	assert.Equal(t, int64(2), node.Status().LogLength)

	// unknown peers fail without a network round trip
	_, err = transport.RequestVote(ctx, "node9", &VoteRequest{From: "node1", To: "node9", Term: 2})
	assert.Error(t, err)
}
