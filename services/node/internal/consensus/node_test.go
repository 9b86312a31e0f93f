package consensus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisleco/aisle-open/pkg/logger"
)

// recordingMachine captures applied commands in order so tests can compare
// the sequences seen by different replicas.
type recordingMachine struct {
	mu      sync.Mutex
	applied []string
}

func (m *recordingMachine) Apply(command []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, string(command))
	return append([]byte("applied:"), command...)
}

func (m *recordingMachine) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied...)
}

func testLogger() *logger.Logger {
	log := logger.New("consensus-test", "1.0.0")
	log.DisableConsoleOutput()
	return log
}

// testConfig shrinks the timeouts so elections settle in milliseconds
// instead of seconds.
func testConfig(id string, peers []string) Config {
	return Config{
		NodeID:             id,
		Peers:              peers,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		RPCTimeout:         100 * time.Millisecond,
		SubmitTimeout:      2 * time.Second,
	}
}

// testCluster wires nodes over a LocalNetwork
type testCluster struct {
	network  *LocalNetwork
	nodes    map[string]*Node
	machines map[string]*recordingMachine
	ids      []string
}

func startCluster(t *testing.T, size int) *testCluster {
	t.Helper()

	c := &testCluster{
		network:  NewLocalNetwork(),
		nodes:    make(map[string]*Node),
		machines: make(map[string]*recordingMachine),
	}
	for i := 1; i <= size; i++ {
		c.ids = append(c.ids, fmt.Sprintf("node%d", i))
	}

	log := testLogger()
	for _, id := range c.ids {
		var peers []string
		for _, other := range c.ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		machine := &recordingMachine{}
		node, err := NewNode(testConfig(id, peers), c.network.Transport(id), NewMemoryStore(), machine, log)
		require.NoError(t, err)
		c.network.Register(id, node)
		c.nodes[id] = node
		c.machines[id] = machine
	}
	for _, id := range c.ids {
		c.nodes[id].Start()
	}
	t.Cleanup(func() {
		for _, id := range c.ids {
			c.nodes[id].Stop()
		}
	})
	return c
}

// waitForLeader returns the first node outside exclude that claims
// leadership.
func (c *testCluster) waitForLeader(t *testing.T, exclude ...string) *Node {
	t.Helper()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range c.ids {
			if skip[id] {
				continue
			}
			if c.nodes[id].IsLeader() {
				return c.nodes[id]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("no leader elected within 10s")
	return nil
}

// waitForStableLeader waits until exactly one node claims leadership and
// every node agrees on its identity.
func (c *testCluster) waitForStableLeader(t *testing.T) *Node {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var leaders []*Node
		for _, id := range c.ids {
			if c.nodes[id].IsLeader() {
				leaders = append(leaders, c.nodes[id])
			}
		}
		if len(leaders) == 1 {
			leader := leaders[0]
			agreed := true
			for _, id := range c.ids {
				if c.nodes[id].LeaderID() != leader.ID() {
					agreed = false
					break
				}
			}
			if agreed {
				return leader
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("cluster did not converge on a single leader within 10s")
	return nil
}

// waitForApplied blocks until every node has applied the log up to index
func (c *testCluster) waitForApplied(t *testing.T, index int64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		done := true
		for _, id := range c.ids {
			if c.nodes[id].Status().LastApplied < index {
				done = false
				break
			}
		}
		if done {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("cluster did not apply up to index %d within 10s", index)
}

func TestSingleNodeElectsItself(t *testing.T) {
	c := startCluster(t, 1)
	leader := c.waitForLeader(t)
	assert.Equal(t, "node1", leader.ID())

	result, err := leader.Submit(context.Background(), []byte("cmd-1"))
	require.NoError(t, err)
	assert.Equal(t, "applied:cmd-1", string(result))

	status := leader.Status()
	assert.Equal(t, RoleLeader, status.Role)
	assert.Equal(t, int64(0), status.CommitIndex)
	assert.Equal(t, int64(0), status.LastApplied)
	assert.Equal(t, int64(1), status.LogLength)
}

func TestClusterElectsSingleLeader(t *testing.T) {
	c := startCluster(t, 3)
	leader := c.waitForStableLeader(t)

	leaders := 0
	for _, id := range c.ids {
		if c.nodes[id].IsLeader() {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)

	term := leader.Status().Term
	for _, id := range c.ids {
		assert.Equal(t, term, c.nodes[id].Status().Term, "node %s diverged on term", id)
		assert.Equal(t, leader.ID(), c.nodes[id].LeaderID(), "node %s diverged on leader", id)
	}
}

func TestSubmitReplicatesInOrder(t *testing.T) {
	c := startCluster(t, 3)
	leader := c.waitForStableLeader(t)

	for i := 0; i < 5; i++ {
		result, err := leader.Submit(context.Background(), []byte("cmd-"+strconv.Itoa(i)))
		require.NoError(t, err)
		assert.Equal(t, "applied:cmd-"+strconv.Itoa(i), string(result))
	}

	c.waitForApplied(t, 4)

	want := []string{"cmd-0", "cmd-1", "cmd-2", "cmd-3", "cmd-4"}
	for _, id := range c.ids {
		assert.Equal(t, want, c.machines[id].commands(), "node %s applied a different sequence", id)
	}
}

func TestConcurrentSubmitsAllCommit(t *testing.T) {
	c := startCluster(t, 3)
	leader := c.waitForStableLeader(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = leader.Submit(context.Background(), []byte("w"+strconv.Itoa(i)))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}

	c.waitForApplied(t, writers-1)

	first := c.machines[c.ids[0]].commands()
	assert.Len(t, first, writers)
	for _, id := range c.ids[1:] {
		assert.Equal(t, first, c.machines[id].commands(), "node %s applied a different sequence", id)
	}
}

func TestSubmitOnFollowerRejected(t *testing.T) {
	c := startCluster(t, 3)
	leader := c.waitForStableLeader(t)

	var follower *Node
	for _, id := range c.ids {
		if id != leader.ID() {
			follower = c.nodes[id]
			break
		}
	}

	_, err := follower.Submit(context.Background(), []byte("nope"))
	hint, ok := IsNotLeader(err)
	require.True(t, ok, "expected NotLeaderError, got %v", err)
	assert.Equal(t, leader.ID(), hint)
}

func TestLeaderFailover(t *testing.T) {
	c := startCluster(t, 3)
	old := c.waitForStableLeader(t)
	oldTerm := old.Status().Term

	c.network.Isolate(old.ID())

	next := c.waitForLeader(t, old.ID())
	assert.NotEqual(t, old.ID(), next.ID())
	assert.Greater(t, next.Status().Term, oldTerm)

	// the surviving majority keeps accepting writes
	result, err := next.Submit(context.Background(), []byte("after-failover"))
	require.NoError(t, err)
	assert.Equal(t, "applied:after-failover", string(result))

	// the cut-off leader rejoins as a follower and catches up
	c.network.HealAll()
	c.waitForApplied(t, 0)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if old.Status().Role == RoleFollower {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, RoleFollower, old.Status().Role)
	assert.Equal(t, []string{"after-failover"}, c.machines[old.ID()].commands())
}

func TestMinorityLeaderCannotCommit(t *testing.T) {
	c := startCluster(t, 3)
	old := c.waitForStableLeader(t)

	c.network.Isolate(old.ID())

	// without a majority the entry never commits
	_, err := old.Submit(context.Background(), []byte("orphan"))
	assert.ErrorIs(t, err, ErrReplicationTimeout)

	next := c.waitForLeader(t, old.ID())
	_, err = next.Submit(context.Background(), []byte("kept"))
	require.NoError(t, err)

	// after healing, the new leader's log wins and the orphaned entry
	// is discarded everywhere
	c.network.HealAll()
	c.waitForApplied(t, 0)

	for _, id := range c.ids {
		assert.Equal(t, []string{"kept"}, c.machines[id].commands(), "node %s applied a different sequence", id)
		assert.Equal(t, int64(1), c.nodes[id].Status().LogLength, "node %s kept a stale log", id)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	c := startCluster(t, 1)
	leader := c.waitForLeader(t)
	leader.Stop()

	_, err := leader.Submit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrStopped)
}

// newIdleNode builds a node without starting its loops, for driving the
// RPC handlers directly.
func newIdleNode(t *testing.T, id string, peers []string, store StateStore) *Node {
	t.Helper()
	network := NewLocalNetwork()
	node, err := NewNode(testConfig(id, peers), network.Transport(id), store, &recordingMachine{}, testLogger())
	require.NoError(t, err)
	return node
}

func TestNodeRestoresPersistedState(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveVote(7, "node1"))
	require.NoError(t, store.SaveEntries([]LogEntry{{Term: 7, Index: 0, Command: []byte("x")}}))

	node := newIdleNode(t, "node1", []string{"node2", "node3"}, store)
	status := node.Status()
	assert.Equal(t, uint64(7), status.Term)
	assert.Equal(t, int64(1), status.LogLength)
	assert.Equal(t, RoleFollower, status.Role)
}

func TestVoteGrantingRules(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveVote(5, ""))
	require.NoError(t, store.SaveEntries([]LogEntry{
		{Term: 4, Index: 0, Command: []byte("a")},
		{Term: 5, Index: 1, Command: []byte("b")},
	}))
	node := newIdleNode(t, "node1", []string{"node2", "node3"}, store)

	t.Run("stale term is refused", func(t *testing.T) {
		reply := node.HandleRequestVote(&VoteRequest{From: "node2", To: "node1", Term: 4, LastLogIndex: 5, LastLogTerm: 4})
		assert.False(t, reply.VoteGranted)
		assert.Equal(t, uint64(5), reply.Term)
	})

	t.Run("stale log is refused but the term is adopted", func(t *testing.T) {
		reply := node.HandleRequestVote(&VoteRequest{From: "node2", To: "node1", Term: 6, LastLogIndex: 0, LastLogTerm: 4})
		assert.False(t, reply.VoteGranted)
		assert.Equal(t, uint64(6), reply.Term)
	})

	t.Run("up-to-date candidate gets the vote", func(t *testing.T) {
		reply := node.HandleRequestVote(&VoteRequest{From: "node3", To: "node1", Term: 7, LastLogIndex: 1, LastLogTerm: 5})
		assert.True(t, reply.VoteGranted)
		assert.Equal(t, uint64(7), reply.Term)
	})

	t.Run("second candidate in the same term is refused", func(t *testing.T) {
		reply := node.HandleRequestVote(&VoteRequest{From: "node2", To: "node1", Term: 7, LastLogIndex: 9, LastLogTerm: 7})
		assert.False(t, reply.VoteGranted)
	})

	t.Run("the chosen candidate is re-granted on retry", func(t *testing.T) {
		reply := node.HandleRequestVote(&VoteRequest{From: "node3", To: "node1", Term: 7, LastLogIndex: 1, LastLogTerm: 5})
		assert.True(t, reply.VoteGranted)
	})
}

func TestAppendEntriesConsistency(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveVote(2, ""))
	require.NoError(t, store.SaveEntries([]LogEntry{
		{Term: 1, Index: 0, Command: []byte("a")},
		{Term: 1, Index: 1, Command: []byte("b")},
		{Term: 2, Index: 2, Command: []byte("c")},
	}))
	node := newIdleNode(t, "node2", []string{"node1", "node3"}, store)

	t.Run("stale term is refused", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{From: "node1", To: "node2", Term: 1, PrevLogIndex: -1})
		assert.False(t, reply.EntryAppended)
		assert.Equal(t, uint64(2), reply.Term)
	})

	t.Run("missing previous entry is refused", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{From: "node1", To: "node2", Term: 3, PrevLogIndex: 5, PrevLogTerm: 2})
		assert.False(t, reply.EntryAppended)
		assert.Equal(t, int64(-1), reply.MatchIndex)
	})

	t.Run("mismatched previous term is refused", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{From: "node1", To: "node2", Term: 3, PrevLogIndex: 1, PrevLogTerm: 2})
		assert.False(t, reply.EntryAppended)
	})

	t.Run("heartbeat confirms the match point", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{From: "node1", To: "node2", Term: 3, PrevLogIndex: 2, PrevLogTerm: 2})
		assert.True(t, reply.EntryAppended)
		assert.Equal(t, int64(2), reply.MatchIndex)
		assert.Equal(t, "node1", node.LeaderID())
	})

	t.Run("conflicting suffix is replaced", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{
			From: "node1", To: "node2", Term: 3, PrevLogIndex: 1, PrevLogTerm: 1,
			Entries: []LogEntry{
				{Term: 3, Command: []byte("d")},
				{Term: 3, Command: []byte("e")},
			},
		})
		assert.True(t, reply.EntryAppended)
		assert.Equal(t, int64(3), reply.MatchIndex)
		assert.Equal(t, int64(4), node.Status().LogLength)
	})

	t.Run("commit index follows the leader within log bounds", func(t *testing.T) {
		reply := node.HandleAppendEntries(&AppendRequest{
			From: "node1", To: "node2", Term: 3, PrevLogIndex: 3, PrevLogTerm: 3, CommitIndex: 99,
		})
		assert.True(t, reply.EntryAppended)
		assert.Equal(t, int64(3), node.Status().CommitIndex)
	})
}
