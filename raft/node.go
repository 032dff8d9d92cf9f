package raft

import (
	"context"
	"sync"
)

// Node is the public, concurrency-safe handle onto a single group
// member's leader-election core. All public methods are safe to call
// from any goroutine; Run must be invoked exactly once and owns the
// only goroutine that ever touches the underlying core's unguarded
// fields.
type Node struct {
	core *core

	mu       sync.RWMutex
	snapshot nodeSnapshot
}

type nodeSnapshot struct {
	state  State
	term   uint64
	leader *NodeId
}

// NewNode constructs a Node in StateStartup. Initialize must be called
// before it will process Heartbeat or VoteRequest traffic.
func NewNode(self NodeId, opts Options, store HardStateStore, transport Transport, spawner TaskSpawner, events EventSink, metrics *Metrics, logger *Logger) (*Node, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c, err := newCore(self, opts, store, transport, spawner, events, metrics, logger)
	if err != nil {
		return nil, err
	}
	n := &Node{core: c}
	n.updateSnapshot(StateStartup)
	return n, nil
}

// Run drives the node's state machine until ctx is canceled or Shutdown
// is called. It returns once the node reaches StateShutdown.
func (n *Node) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		select {
		case n.core.intake <- MsgShutdown{}:
		default:
		}
	}()

	state := StateStartup
	var prevVal *State

	for state != StateShutdown {
		n.core.setState(state)
		n.updateSnapshot(state)

		slot := newPrevStateSlot(prevVal)
		var next State
		switch state {
		case StateStartup:
			next = n.core.runStartup()
		case StateFollower:
			next = n.core.runFollower(slot)
		case StatePreCandidate:
			next = n.core.runPreCandidate(slot)
		case StateCandidate:
			next = n.core.runCandidate(slot)
		case StateLeader:
			next = n.core.runLeader(slot)
		default:
			next = StateShutdown
		}

		s := state
		prevVal = &s
		state = next
	}

	n.core.setState(StateShutdown)
	n.updateSnapshot(StateShutdown)
	return nil
}

func (n *Node) updateSnapshot(state State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snapshot = nodeSnapshot{
		state:  state,
		term:   n.core.hardState.CurrentTerm,
		leader: n.core.volatile.CurrentLeader,
	}
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot.state
}

// Term returns the node's last-observed current_term.
func (n *Node) Term() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot.term
}

// Leader returns the node's last-known leader, if any.
func (n *Node) Leader() *NodeId {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot.leader
}

// ID returns the node's own identity.
func (n *Node) ID() NodeId { return n.core.self }

// Initialize supplies the group's membership and starts the node's
// election timer. ForceLeaderHint marks this node as a preferred
// candidate: it still runs the normal Follower -> PreCandidate ->
// Candidate -> Leader progression, but its first Follower iteration
// uses a near-immediate election deadline so it reaches PreCandidate
// (and, absent competition, wins the election) well ahead of peers
// running a full randomized timeout.
func (n *Node) Initialize(ctx context.Context, members Membership, forceLeaderHint bool) error {
	reply := make(chan error, 1)
	msg := MsgInitialize{Members: members, ForceLeaderHint: forceLeaderHint, Reply: reply}

	select {
	case n.core.intake <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateOptions replaces the node's runtime options.
func (n *Node) UpdateOptions(ctx context.Context, opts Options) error {
	reply := make(chan error, 1)
	msg := MsgUpdateOptions{Options: opts, Reply: reply}

	select {
	case n.core.intake <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown requests a cooperative stop; Run returns once it takes
// effect.
func (n *Node) Shutdown() {
	select {
	case n.core.intake <- MsgShutdown{}:
	default:
	}
}

// Heartbeat implements LocalNode: it is the entry point both Router and
// GRPCServer call for an inbound Heartbeat RPC.
func (n *Node) Heartbeat(ctx context.Context, req HeartbeatReq) (HeartbeatResp, error) {
	if req.LeaderID.GroupID != n.core.self.GroupID {
		return HeartbeatResp{}, newWrongGroupError()
	}

	reply := make(ReplyChan[HeartbeatResp], 1)
	msg := MsgHeartbeat{Req: req, Reply: reply}

	select {
	case n.core.intake <- msg:
	case <-ctx.Done():
		return HeartbeatResp{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return HeartbeatResp{}, ctx.Err()
	}
}

// VoteRequest implements LocalNode: the entry point for an inbound
// RequestVote RPC (pre-vote or real).
func (n *Node) VoteRequest(ctx context.Context, req VoteReq) (VoteResp, error) {
	if req.CandidateID.GroupID != n.core.self.GroupID {
		return VoteResp{}, newWrongGroupError()
	}

	reply := make(ReplyChan[VoteResp], 1)
	msg := MsgVoteRequest{Req: req, Reply: reply}

	select {
	case n.core.intake <- msg:
	case <-ctx.Done():
		return VoteResp{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return VoteResp{}, ctx.Err()
	}
}
