package consensus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aisleco/aisle-open/pkg/logger"
)

// PostgresStore persists consensus state in PostgreSQL. Rows are keyed by
// node ID so every node of a local cluster can share one database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
	nodeID string
}

// NewPostgresStore creates a PostgreSQL-backed state store and ensures the
// schema exists.
func NewPostgresStore(pool *pgxpool.Pool, log *logger.Logger, nodeID string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if nodeID == "" {
		return nil, fmt.Errorf("nodeID cannot be empty")
	}

	store := &PostgresStore{
		pool:   pool,
		logger: log,
		nodeID: nodeID,
	}

	if err := store.initializeTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize state tables: %v", err)
	}

	return store, nil
}

func (s *PostgresStore) initializeTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createStateTable := `
		CREATE TABLE IF NOT EXISTS raft_state (
			node_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (node_id, key)
		)
	`
	if _, err := s.pool.Exec(ctx, createStateTable); err != nil {
		return fmt.Errorf("failed to create raft_state table: %v", err)
	}

	createLogTable := `
		CREATE TABLE IF NOT EXISTS raft_log (
			node_id TEXT NOT NULL,
			log_index BIGINT NOT NULL,
			term BIGINT NOT NULL,
			command BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (node_id, log_index)
		)
	`
	if _, err := s.pool.Exec(ctx, createLogTable); err != nil {
		return fmt.Errorf("failed to create raft_log table: %v", err)
	}

	createIndex := `
		CREATE INDEX IF NOT EXISTS idx_raft_log_node_index
		ON raft_log(node_id, log_index)
	`
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create raft_log index: %v", err)
	}

	if s.logger != nil {
		s.logger.Debugf("Consensus state tables ready for node %s", s.nodeID)
	}
	return nil
}

// Load reads the persisted term, vote and log. A node that has never run
// before gets an empty state.
func (s *PostgresStore) Load() (*PersistentState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state := &PersistentState{}

	var termText string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM raft_state WHERE node_id = $1 AND key = 'term'",
		s.nodeID).Scan(&termText)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load term: %v", err)
	}
	if err == nil {
		term, perr := strconv.ParseUint(termText, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse persisted term %q: %v", termText, perr)
		}
		state.Term = term
	}

	err = s.pool.QueryRow(ctx,
		"SELECT value FROM raft_state WHERE node_id = $1 AND key = 'voted_for'",
		s.nodeID).Scan(&state.VotedFor)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load vote: %v", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT log_index, term, command FROM raft_log WHERE node_id = $1 ORDER BY log_index ASC",
		s.nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load log: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.Index, &entry.Term, &entry.Command); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %v", err)
		}
		if entry.Index != int64(len(state.Log)) {
			return nil, fmt.Errorf("persisted log has a gap at index %d", entry.Index)
		}
		state.Log = append(state.Log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log rows: %v", err)
	}

	if s.logger != nil {
		s.logger.Infof("Loaded persisted state for node %s: term=%d votedFor=%q logLength=%d",
			s.nodeID, state.Term, state.VotedFor, len(state.Log))
	}
	return state, nil
}

// SaveVote records the current term and vote in one transaction
func (s *PostgresStore) SaveVote(term uint64, votedFor string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO raft_state (node_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (node_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, upsert, s.nodeID, "term", strconv.FormatUint(term, 10)); err != nil {
		return fmt.Errorf("failed to save term: %v", err)
	}
	if _, err := tx.Exec(ctx, upsert, s.nodeID, "voted_for", votedFor); err != nil {
		return fmt.Errorf("failed to save vote: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit vote: %v", err)
	}
	return nil
}

// SaveEntries writes entries at their own indexes, overwriting any previous
// entry at the same index.
func (s *PostgresStore) SaveEntries(entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, entry := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO raft_log (node_id, log_index, term, command)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (node_id, log_index)
			DO UPDATE SET term = EXCLUDED.term, command = EXCLUDED.command
		`, s.nodeID, entry.Index, entry.Term, entry.Command)
		if err != nil {
			return fmt.Errorf("failed to store log entry %d: %v", entry.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit log entries: %v", err)
	}
	return nil
}

// TruncateFrom removes all entries with index >= index
func (s *PostgresStore) TruncateFrom(index int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		"DELETE FROM raft_log WHERE node_id = $1 AND log_index >= $2",
		s.nodeID, index)
	if err != nil {
		return fmt.Errorf("failed to truncate log from %d: %v", index, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller
func (s *PostgresStore) Close() {}
