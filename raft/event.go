package raft

import "context"

// Event is the sealed set of lifecycle notifications the core delivers
// asynchronously through a TaskSpawner to an EventSink.
type Event interface {
	isEvent()
}

// EvTransitToFollower fires whenever a state loop enters Follower.
type EvTransitToFollower struct {
	Term      uint64
	PrevState *State
}

func (EvTransitToFollower) isEvent() {}

// EvTransitToPreCandidate fires on entry to PreCandidate.
type EvTransitToPreCandidate struct {
	PrevState *State
}

func (EvTransitToPreCandidate) isEvent() {}

// EvTransitToCandidate fires on entry to Candidate, carrying the new term.
type EvTransitToCandidate struct {
	Term      uint64
	PrevState *State
}

func (EvTransitToCandidate) isEvent() {}

// EvTransitToLeader fires on entry to Leader.
type EvTransitToLeader struct {
	Term      uint64
	PrevState *State
}

func (EvTransitToLeader) isEvent() {}

// EvGrantVote fires whenever this node grants a vote, pre-vote or real.
type EvGrantVote struct {
	Term      uint64
	Candidate NodeId
}

func (EvGrantVote) isEvent() {}

// EvRejectVote fires whenever this node rejects a vote request.
type EvRejectVote struct {
	Term      uint64
	Candidate NodeId
	Reason    string
}

func (EvRejectVote) isEvent() {}

// EvLeaderChanged fires whenever current_leader changes.
type EvLeaderChanged struct {
	From *NodeId
	To   *NodeId
	Term uint64
}

func (EvLeaderChanged) isEvent() {}

// EventSink consumes Event values dispatched through a TaskSpawner. An
// implementation must be safe to call from arbitrary goroutines: the
// spawner is explicitly permitted to run it off the state-loop thread.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a plain function to an EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

func (f EventSinkFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// MultiEventSink fans an event out to every sink in order, returning the
// first error encountered (if any) after attempting all of them.
type MultiEventSink struct {
	Sinks []EventSink
}

func (m MultiEventSink) HandleEvent(ctx context.Context, ev Event) error {
	var first error
	for _, sink := range m.Sinks {
		if err := sink.HandleEvent(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopEventSink discards every event; useful in tests that only care
// about state-machine behavior.
type NopEventSink struct{}

func (NopEventSink) HandleEvent(context.Context, Event) error { return nil }
