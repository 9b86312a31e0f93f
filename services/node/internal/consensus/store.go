package consensus

// PersistentState is the durable portion of a node's consensus state
type PersistentState struct {
	Term     uint64
	VotedFor string
	Log      []LogEntry
}

// StateStore persists term, vote and log entries across restarts. All
// methods are called with the node mutex held, so implementations do not
// need their own synchronization against the node.
type StateStore interface {
	// Load returns the persisted state, or an empty state when the node
	// has never run before.
	Load() (*PersistentState, error)

	// SaveVote records the current term and vote
	SaveVote(term uint64, votedFor string) error

	// SaveEntries writes entries at their own indexes, overwriting any
	// previous entry at the same index
	SaveEntries(entries []LogEntry) error

	// TruncateFrom removes all entries with index >= index
	TruncateFrom(index int64) error

	// Close releases the store's resources
	Close()
}

// MemoryStore keeps consensus state in memory only. A node backed by it
// must not rejoin the cluster after a crash; the reference deployment
// treats a crash as a permanent node failure.
type MemoryStore struct {
	state PersistentState
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*PersistentState, error) {
	out := PersistentState{
		Term:     m.state.Term,
		VotedFor: m.state.VotedFor,
		Log:      append([]LogEntry(nil), m.state.Log...),
	}
	return &out, nil
}

func (m *MemoryStore) SaveVote(term uint64, votedFor string) error {
	m.state.Term = term
	m.state.VotedFor = votedFor
	return nil
}

func (m *MemoryStore) SaveEntries(entries []LogEntry) error {
	for _, e := range entries {
		for int64(len(m.state.Log)) <= e.Index {
			m.state.Log = append(m.state.Log, LogEntry{})
		}
		m.state.Log[e.Index] = e
	}
	return nil
}

func (m *MemoryStore) TruncateFrom(index int64) error {
	if index < 0 {
		index = 0
	}
	if index < int64(len(m.state.Log)) {
		m.state.Log = m.state.Log[:index]
	}
	return nil
}

func (m *MemoryStore) Close() {}
