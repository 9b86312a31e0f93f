package consensus

import (
	"errors"
	"fmt"
)

var (
	// ErrLostLeadership is returned to submit waiters when the node steps
	// down before their entry commits. The entry may still commit later.
	ErrLostLeadership = errors.New("lost leadership before commit")

	// ErrReplicationTimeout is returned when an entry does not commit
	// within the submit timeout. The entry may still commit later.
	ErrReplicationTimeout = errors.New("replication timed out before commit")

	// ErrStopped is returned when the node has been shut down
	ErrStopped = errors.New("consensus node is stopped")
)

// NotLeaderError is returned by Submit on a non-leader node. LeaderHint
// carries the last known leader ID and may be empty during an election.
type NotLeaderError struct {
	LeaderHint string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderHint == "" {
		return "not the leader (no leader known)"
	}
	return fmt.Sprintf("not the leader (leader: %s)", e.LeaderHint)
}

// IsNotLeader reports whether err is a NotLeaderError and returns its hint
func IsNotLeader(err error) (string, bool) {
	var nle *NotLeaderError
	if errors.As(err, &nle) {
		return nle.LeaderHint, true
	}
	return "", false
}
