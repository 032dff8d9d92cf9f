// Package raft implements the group leader-election core: a four-state
// finite automaton (Follower, PreCandidate, Candidate, Leader) driven by a
// single message-intake channel, with a pluggable quorum policy and
// weighted voting. It intentionally does not implement log replication,
// snapshotting, or client command routing — see the package-level
// collaborators in storage.go, transport.go and membership.go for the
// external interfaces the core consumes.
package raft

import (
	"fmt"
	"time"
)

// NodeId identifies a node within a group. Two nodes are peers only if
// they share GroupID. NodeId has a total order by (GroupID, NodeID).
type NodeId struct {
	GroupID uint64
	NodeID  uint64
}

func (n NodeId) String() string {
	return fmt.Sprintf("%d:%d", n.GroupID, n.NodeID)
}

// Less reports whether n sorts before other under the (GroupID, NodeID)
// total order.
func (n NodeId) Less(other NodeId) bool {
	if n.GroupID != other.GroupID {
		return n.GroupID < other.GroupID
	}
	return n.NodeID < other.NodeID
}

// VoteFactor is an opaque per-node weight supplied by the embedder. A
// factor of zero means the node participates but contributes no weight
// to a Major/AnyWeighted quorum.
type VoteFactor int64

// State is one of the node's lifecycle states. Shutdown is terminal.
type State int

const (
	StateStartup State = iota
	StateFollower
	StatePreCandidate
	StateCandidate
	StateLeader
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "Startup"
	case StateFollower:
		return "Follower"
	case StatePreCandidate:
		return "PreCandidate"
	case StateCandidate:
		return "Candidate"
	case StateLeader:
		return "Leader"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// isTimedState reports whether the state runs its own election timer.
// next_election_timeout is cleared on entry to any non-timed state.
func isTimedState(s State) bool {
	switch s {
	case StateFollower, StatePreCandidate, StateCandidate:
		return true
	default:
		return false
	}
}

// HardState is the minimum state that must survive a process restart if
// durability is desired by the embedder. current_term is monotonically
// non-decreasing; voted_for is reset to nil whenever current_term
// advances; at most one voted_for value is recorded per term.
type HardState struct {
	CurrentTerm uint64
	VotedFor    *NodeId
}

// VolatileState is the in-memory, non-durable view of a node.
type VolatileState struct {
	State               State
	CurrentLeader       *NodeId
	NextElectionTimeout *time.Time
	PrevState           *State
}

// QuorumKind tags the variant of QuorumPolicy in effect.
type QuorumKind int

const (
	// QuorumMajor requires a strict majority of weighted votes.
	QuorumMajor QuorumKind = iota
	// QuorumAny requires at least K distinct granted voters, regardless
	// of weight.
	QuorumAny
	// QuorumAnyWeighted requires the sum of granted weights to reach W.
	QuorumAnyWeighted
)

// QuorumPolicy is a tagged union over the three quorum arithmetics this
// core supports. K is meaningful only for QuorumAny; W only for
// QuorumAnyWeighted.
type QuorumPolicy struct {
	Kind QuorumKind
	K    int
	W    VoteFactor
}

// Major constructs a strict-majority-of-weight quorum policy.
func Major() QuorumPolicy { return QuorumPolicy{Kind: QuorumMajor} }

// Any constructs a k-distinct-voters quorum policy.
func Any(k int) QuorumPolicy { return QuorumPolicy{Kind: QuorumAny, K: k} }

// AnyWeighted constructs a weighted-sum quorum policy.
func AnyWeighted(w VoteFactor) QuorumPolicy { return QuorumPolicy{Kind: QuorumAnyWeighted, W: w} }

// Options holds the tunables a node can be constructed or reconfigured
// with via UpdateOptions. Changes take effect at the next evaluation,
// never retroactively on an in-flight vote tally.
type Options struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	LeaderLease        time.Duration
	QuorumPolicy       QuorumPolicy
}

// DefaultOptions returns a 150-300ms randomized election window with a
// 50ms heartbeat cadence.
func DefaultOptions() Options {
	return Options{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		LeaderLease:        1 * time.Second,
		QuorumPolicy:       Major(),
	}
}

// Validate rejects configuration that would cause split-vote livelock or
// nonsensical timing: a deterministic (zero-width) election window must
// be rejected.
func (o Options) Validate() error {
	if o.ElectionTimeoutMin <= 0 || o.ElectionTimeoutMax <= 0 {
		return fmt.Errorf("raft: election timeout bounds must be positive")
	}
	if o.ElectionTimeoutMax < o.ElectionTimeoutMin {
		return fmt.Errorf("raft: election_timeout_max must be >= election_timeout_min")
	}
	if o.ElectionTimeoutMax == o.ElectionTimeoutMin {
		return fmt.Errorf("raft: election timeout window must have nonzero jitter (min == max causes split-vote livelock)")
	}
	if o.HeartbeatInterval <= 0 {
		return fmt.Errorf("raft: heartbeat_interval must be positive")
	}
	if o.QuorumPolicy.Kind == QuorumAny && o.QuorumPolicy.K <= 0 {
		return fmt.Errorf("raft: Any(k) quorum policy requires k >= 1")
	}
	return nil
}
