package consensus

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisleco/aisle-open/pkg/logger"
)

type submitOutcome struct {
	result []byte
	err    error
}

// Node is a single member of the consensus cluster. It owns the replicated
// log, drives elections and replication, and feeds committed commands to
// the state machine in log order.
//
// One mutex guards all consensus state. It is never held across a peer
// RPC: callers snapshot what they need, release the lock, perform the
// call, then reacquire and re-validate role and term before acting on
// the reply.
type Node struct {
	config    Config
	logger    *logger.Logger
	transport Transport
	store     StateStore
	machine   StateMachine

	mu               sync.Mutex
	role             Role
	currentTerm      uint64
	votedFor         string
	log              []LogEntry
	commitIndex      int64
	lastApplied      int64
	leaderID         string
	electionDeadline time.Time
	nextIndex        map[string]int64
	matchIndex       map[string]int64
	pending          map[int64]chan submitOutcome
	rng              *rand.Rand
	stopped          bool

	applyNotify chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup

	metrics struct {
		electionsStarted int64
		votesGranted     int64
		appendsSent      int64
		entriesAppended  int64
		commandsApplied  int64
	}
}

// NewNode creates a node and restores any persisted state. Call Start to
// begin participating in the cluster.
func NewNode(cfg Config, transport Transport, store StateStore, machine StateMachine, log *logger.Logger) (*Node, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.New("consensus", "dev")
	}
	if store == nil {
		store = NewMemoryStore()
	}

	seed := fnv.New64a()
	seed.Write([]byte(cfg.NodeID))

	n := &Node{
		config:      cfg,
		logger:      log,
		transport:   transport,
		store:       store,
		machine:     machine,
		role:        RoleFollower,
		commitIndex: -1,
		lastApplied: -1,
		nextIndex:   make(map[string]int64),
		matchIndex:  make(map[string]int64),
		pending:     make(map[int64]chan submitOutcome),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(seed.Sum64()))),
		applyNotify: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}

	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	n.currentTerm = state.Term
	n.votedFor = state.VotedFor
	n.log = state.Log
	n.resetElectionDeadlineLocked()

	return n, nil
}

// Start launches the election, heartbeat and apply loops
func (n *Node) Start() {
	n.wg.Add(3)
	go n.electionLoop()
	go n.heartbeatLoop()
	go n.applyLoop()
	n.logger.Infof("Node %s started as follower (term %d, log length %d)",
		n.config.NodeID, n.currentTerm, len(n.log))
}

// Stop shuts the node down and fails any waiting submitters
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.failPendingLocked(ErrStopped)
	n.mu.Unlock()

	close(n.stopCh)
	n.wg.Wait()
	n.store.Close()
	n.logger.Infof("Node %s stopped", n.config.NodeID)
}

// ID returns the node's cluster-wide identifier
func (n *Node) ID() string {
	return n.config.NodeID
}

// IsLeader reports whether the node currently believes it is the leader
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == RoleLeader
}

// LeaderID returns the last known leader, or "" during an election
func (n *Node) LeaderID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// Status returns a snapshot of the node's consensus state
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{
		NodeID:      n.config.NodeID,
		Role:        n.role,
		Term:        n.currentTerm,
		LeaderID:    n.leaderID,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LogLength:   int64(len(n.log)),
		Peers:       append([]string(nil), n.config.Peers...),
	}
}

// Metrics returns cumulative counters for the metrics loop
func (n *Node) Metrics() map[string]int64 {
	return map[string]int64{
		"elections_started": atomic.LoadInt64(&n.metrics.electionsStarted),
		"votes_granted":     atomic.LoadInt64(&n.metrics.votesGranted),
		"appends_sent":      atomic.LoadInt64(&n.metrics.appendsSent),
		"entries_appended":  atomic.LoadInt64(&n.metrics.entriesAppended),
		"commands_applied":  atomic.LoadInt64(&n.metrics.commandsApplied),
	}
}

// Submit replicates a command and returns the state machine's result once
// the entry commits and applies on this node. Non-leaders reject with
// NotLeaderError carrying the last known leader as a hint.
func (n *Node) Submit(ctx context.Context, command []byte) ([]byte, error) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil, ErrStopped
	}
	if n.role != RoleLeader {
		hint := n.leaderID
		n.mu.Unlock()
		return nil, &NotLeaderError{LeaderHint: hint}
	}

	entry := LogEntry{
		Term:    n.currentTerm,
		Index:   int64(len(n.log)),
		Command: command,
	}
	n.log = append(n.log, entry)
	if err := n.store.SaveEntries([]LogEntry{entry}); err != nil {
		n.logger.Errorf("Failed to persist entry %d: %v", entry.Index, err)
	}

	ch := make(chan submitOutcome, 1)
	n.pending[entry.Index] = ch

	// a single-node cluster commits on its own match
	n.advanceCommitLocked()
	n.mu.Unlock()

	n.broadcastAppend()

	timer := time.NewTimer(n.config.SubmitTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		n.abandonPending(entry.Index)
		return nil, ctx.Err()
	case <-timer.C:
		n.abandonPending(entry.Index)
		return nil, ErrReplicationTimeout
	}
}

func (n *Node) abandonPending(index int64) {
	n.mu.Lock()
	delete(n.pending, index)
	n.mu.Unlock()
}

// failPendingLocked resolves every waiting submitter with err. Each pending
// channel has capacity one and exactly one sender, so sends never block.
func (n *Node) failPendingLocked(err error) {
	for index, ch := range n.pending {
		delete(n.pending, index)
		ch <- submitOutcome{err: err}
	}
}

func (n *Node) notifyApplyLocked() {
	select {
	case n.applyNotify <- struct{}{}:
	default:
	}
}

// resetElectionDeadlineLocked redraws a fresh randomized timeout
func (n *Node) resetElectionDeadlineLocked() {
	span := int64(n.config.ElectionTimeoutMax - n.config.ElectionTimeoutMin)
	d := n.config.ElectionTimeoutMin + time.Duration(n.rng.Int63n(span+1))
	n.electionDeadline = time.Now().Add(d)
}

// stepDownLocked reverts to follower. A higher term clears the vote and is
// persisted before any reply that mentions it leaves the node.
func (n *Node) stepDownLocked(term uint64) {
	wasLeader := n.role == RoleLeader
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
		if err := n.store.SaveVote(n.currentTerm, n.votedFor); err != nil {
			n.logger.Errorf("Failed to persist term %d: %v", term, err)
		}
	}
	n.role = RoleFollower
	if wasLeader {
		n.leaderID = ""
		n.failPendingLocked(ErrLostLeadership)
		n.logger.Warnf("Node %s stepped down from leader (term %d)", n.config.NodeID, n.currentTerm)
	}
	n.resetElectionDeadlineLocked()
}

func (n *Node) lastLogInfoLocked() (int64, uint64) {
	lastIndex := int64(len(n.log)) - 1
	if lastIndex < 0 {
		return -1, 0
	}
	return lastIndex, n.log[lastIndex].Term
}

// electionLoop checks the election deadline on a short tick. Leaders do
// not time out; everyone else starts an election once the deadline passes.
func (n *Node) electionLoop() {
	defer n.wg.Done()

	interval := n.config.ElectionTimeoutMin / 10
	if interval > 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			due := n.role != RoleLeader && time.Now().After(n.electionDeadline)
			n.mu.Unlock()
			if due {
				n.startElection()
			}
		}
	}
}

// startElection moves to candidate, votes for itself and solicits the
// peers. The winner of a majority at the election's term becomes leader.
func (n *Node) startElection() {
	n.mu.Lock()
	if n.stopped || n.role == RoleLeader {
		n.mu.Unlock()
		return
	}

	n.role = RoleCandidate
	n.currentTerm++
	n.votedFor = n.config.NodeID
	n.leaderID = ""
	n.resetElectionDeadlineLocked()
	if err := n.store.SaveVote(n.currentTerm, n.votedFor); err != nil {
		n.logger.Errorf("Failed to persist candidacy for term %d: %v", n.currentTerm, err)
	}

	term := n.currentTerm
	lastIndex, lastTerm := n.lastLogInfoLocked()
	peers := append([]string(nil), n.config.Peers...)

	needed := (len(peers)+1)/2 + 1
	votes := 1
	if votes >= needed {
		n.becomeLeaderLocked()
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	atomic.AddInt64(&n.metrics.electionsStarted, 1)
	n.logger.Infof("Node %s starting election for term %d", n.config.NodeID, term)

	for _, peer := range peers {
		go func(peer string) {
			ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
			defer cancel()

			reply, err := n.transport.RequestVote(ctx, peer, &VoteRequest{
				From:         n.config.NodeID,
				To:           peer,
				Term:         term,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			})
			if err != nil {
				n.logger.Debugf("Vote request to %s failed: %v", peer, err)
				return
			}

			n.mu.Lock()
			defer n.mu.Unlock()
			if reply.Term > n.currentTerm {
				n.stepDownLocked(reply.Term)
				return
			}
			if n.role != RoleCandidate || n.currentTerm != term || !reply.VoteGranted {
				return
			}
			votes++
			if votes == needed {
				n.becomeLeaderLocked()
			}
		}(peer)
	}
}

// becomeLeaderLocked initializes replication state and announces the new
// leadership with an immediate append round.
func (n *Node) becomeLeaderLocked() {
	n.role = RoleLeader
	n.leaderID = n.config.NodeID
	for _, peer := range n.config.Peers {
		n.nextIndex[peer] = int64(len(n.log))
		n.matchIndex[peer] = -1
	}
	n.logger.Infof("Node %s became leader for term %d", n.config.NodeID, n.currentTerm)
	go n.broadcastAppend()
}

func (n *Node) heartbeatLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			isLeader := n.role == RoleLeader
			n.mu.Unlock()
			if isLeader {
				n.broadcastAppend()
			}
		}
	}
}

// broadcastAppend sends one replication round to every peer. Entries ride
// along whenever a peer is behind, so heartbeats and replication share a
// single path.
func (n *Node) broadcastAppend() {
	n.mu.Lock()
	if n.stopped || n.role != RoleLeader {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	peers := append([]string(nil), n.config.Peers...)
	n.mu.Unlock()

	atomic.AddInt64(&n.metrics.appendsSent, 1)
	for _, peer := range peers {
		go n.replicateTo(peer, term)
	}
}

func (n *Node) replicateTo(peer string, term uint64) {
	n.mu.Lock()
	if n.stopped || n.role != RoleLeader || n.currentTerm != term {
		n.mu.Unlock()
		return
	}
	next := n.nextIndex[peer]
	prevIndex := next - 1
	var prevTerm uint64
	if prevIndex >= 0 {
		prevTerm = n.log[prevIndex].Term
	}
	req := &AppendRequest{
		From:         n.config.NodeID,
		To:           peer,
		Term:         term,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		CommitIndex:  n.commitIndex,
		Entries:      append([]LogEntry(nil), n.log[next:]...),
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
	defer cancel()
	reply, err := n.transport.AppendEntries(ctx, peer, req)
	if err != nil {
		// unreachable peers are retried on the next heartbeat
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if reply.Term > n.currentTerm {
		n.stepDownLocked(reply.Term)
		return
	}
	if n.stopped || n.role != RoleLeader || n.currentTerm != term {
		return
	}

	if reply.EntryAppended {
		n.matchIndex[peer] = reply.MatchIndex
		n.nextIndex[peer] = reply.MatchIndex + 1
		n.advanceCommitLocked()
	} else if n.nextIndex[peer] > 0 {
		n.nextIndex[peer]--
	}
}

// advanceCommitLocked moves the commit index to the highest entry of the
// current term that a majority has replicated. Terms are monotonic along
// the log, so the scan stops at the first older-term entry.
func (n *Node) advanceCommitLocked() {
	needed := (len(n.config.Peers)+1)/2 + 1
	for idx := int64(len(n.log)) - 1; idx > n.commitIndex; idx-- {
		if n.log[idx].Term != n.currentTerm {
			break
		}
		count := 1
		for _, peer := range n.config.Peers {
			if n.matchIndex[peer] >= idx {
				count++
			}
		}
		if count >= needed {
			n.commitIndex = idx
			n.notifyApplyLocked()
			break
		}
	}
}

// HandleRequestVote answers a candidate's vote solicitation
func (n *Node) HandleRequestVote(req *VoteRequest) *VoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	reply := &VoteReply{From: n.config.NodeID, To: req.From}

	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	}
	reply.Term = n.currentTerm

	if req.Term < n.currentTerm {
		return reply
	}

	lastIndex, lastTerm := n.lastLogInfoLocked()
	upToDate := req.LastLogTerm > lastTerm ||
		(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)

	if (n.votedFor == "" || n.votedFor == req.From) && upToDate {
		n.votedFor = req.From
		n.resetElectionDeadlineLocked()
		if err := n.store.SaveVote(n.currentTerm, n.votedFor); err != nil {
			n.logger.Errorf("Failed to persist vote for %s: %v", req.From, err)
		}
		reply.VoteGranted = true
		atomic.AddInt64(&n.metrics.votesGranted, 1)
		n.logger.Infof("Node %s granted vote to %s for term %d", n.config.NodeID, req.From, n.currentTerm)
	}
	return reply
}

// HandleAppendEntries answers a leader's heartbeat or replication round
func (n *Node) HandleAppendEntries(req *AppendRequest) *AppendReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	reply := &AppendReply{From: n.config.NodeID, To: req.From, MatchIndex: -1}

	if req.Term < n.currentTerm {
		reply.Term = n.currentTerm
		return reply
	}

	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	} else if n.role != RoleFollower {
		n.role = RoleFollower
	}
	n.leaderID = req.From
	n.resetElectionDeadlineLocked()
	reply.Term = n.currentTerm

	// consistency check: the entry before the new ones must match
	if req.PrevLogIndex >= 0 {
		if req.PrevLogIndex >= int64(len(n.log)) || n.log[req.PrevLogIndex].Term != req.PrevLogTerm {
			return reply
		}
	}

	insert := req.PrevLogIndex + 1
	appended := make([]LogEntry, 0, len(req.Entries))
	truncateAt := int64(-1)
	for i := range req.Entries {
		idx := insert + int64(i)
		entry := req.Entries[i]
		entry.Index = idx
		if idx < int64(len(n.log)) {
			if n.log[idx].Term == entry.Term {
				continue
			}
			// conflicting entry: drop it and everything after it
			n.log = n.log[:idx]
			truncateAt = idx
		}
		n.log = append(n.log, entry)
		appended = append(appended, entry)
	}
	if truncateAt >= 0 {
		if err := n.store.TruncateFrom(truncateAt); err != nil {
			n.logger.Errorf("Failed to truncate persisted log from %d: %v", truncateAt, err)
		}
	}
	if len(appended) > 0 {
		if err := n.store.SaveEntries(appended); err != nil {
			n.logger.Errorf("Failed to persist %d entries: %v", len(appended), err)
		}
		atomic.AddInt64(&n.metrics.entriesAppended, int64(len(appended)))
	}

	if req.CommitIndex > n.commitIndex {
		newCommit := req.CommitIndex
		if last := int64(len(n.log)) - 1; newCommit > last {
			newCommit = last
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
			n.notifyApplyLocked()
		}
	}

	reply.EntryAppended = true
	reply.MatchIndex = req.PrevLogIndex + int64(len(req.Entries))
	return reply
}

// applyLoop feeds committed entries to the state machine in log order.
// The fallback tick covers a missed notification.
func (n *Node) applyLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case <-n.applyNotify:
		case <-time.After(100 * time.Millisecond):
		}
		n.applyReady()
	}
}

func (n *Node) applyReady() {
	for {
		n.mu.Lock()
		if n.stopped || n.lastApplied >= n.commitIndex {
			n.mu.Unlock()
			return
		}
		index := n.lastApplied + 1
		entry := n.log[index]
		n.mu.Unlock()

		// Apply runs without the consensus lock so RPC handling is never
		// blocked behind the state machine
		result := n.machine.Apply(entry.Command)

		n.mu.Lock()
		n.lastApplied = index
		if ch, ok := n.pending[index]; ok {
			delete(n.pending, index)
			ch <- submitOutcome{result: result}
		}
		n.mu.Unlock()
		atomic.AddInt64(&n.metrics.commandsApplied, 1)
	}
}
