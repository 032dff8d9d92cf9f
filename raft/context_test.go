package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, self NodeId) *core {
	t.Helper()
	c, err := newCore(self, fastOptions(), NewMemHardStateStore(), NewRouter(), SyncSpawner{}, NopEventSink{}, NopMetrics(self), NewNopLogger(self))
	require.NoError(t, err)
	return c
}

func TestHandleHeartbeatRejectsStaleTerm(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	c.hardState = HardState{CurrentTerm: 5}

	leader := NodeId{GroupID: 1, NodeID: 2}
	resp := c.handleHeartbeat(HeartbeatReq{Term: 3, LeaderID: leader})

	require.False(t, resp.Success)
	require.Equal(t, uint64(5), resp.Term)
	require.Nil(t, c.volatile.CurrentLeader)
}

func TestHandleHeartbeatAdoptsHigherTerm(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	c.hardState = HardState{CurrentTerm: 2}

	leader := NodeId{GroupID: 1, NodeID: 2}
	resp := c.handleHeartbeat(HeartbeatReq{Term: 9, LeaderID: leader})

	require.True(t, resp.Success)
	require.Equal(t, uint64(9), resp.Term)
	require.NotNil(t, c.volatile.CurrentLeader)
	require.Equal(t, leader, *c.volatile.CurrentLeader)
}

func TestHandleVoteRequestDeniesSecondVoteSameTerm(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)

	first := NodeId{GroupID: 1, NodeID: 2}
	second := NodeId{GroupID: 1, NodeID: 3}

	resp := c.handleVoteRequest(VoteReq{Term: 1, CandidateID: first})
	require.True(t, resp.VoteGranted)

	resp = c.handleVoteRequest(VoteReq{Term: 1, CandidateID: second})
	require.False(t, resp.VoteGranted)
}

func TestHandleVoteRequestPreVoteNeverMutatesHardState(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	c.hardState = HardState{CurrentTerm: 4}
	c.volatile.NextElectionTimeout = nil // near-expiry: grants pre-vote

	candidate := NodeId{GroupID: 1, NodeID: 2}
	resp := c.handleVoteRequest(VoteReq{Term: 5, CandidateID: candidate, PreVote: true})

	require.True(t, resp.VoteGranted)
	require.Equal(t, uint64(4), c.hardState.CurrentTerm)
	require.Nil(t, c.hardState.VotedFor)
}

func TestHandleVoteRequestPreVoteDeniedWhenTimeoutFreshAndLeaderKnown(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	far := time.Now().Add(time.Hour)
	c.volatile.NextElectionTimeout = &far
	leader := NodeId{GroupID: 1, NodeID: 3}
	c.volatile.CurrentLeader = &leader

	candidate := NodeId{GroupID: 1, NodeID: 2}
	resp := c.handleVoteRequest(VoteReq{Term: 1, CandidateID: candidate, PreVote: true})

	require.False(t, resp.VoteGranted)
}

func TestHandleVoteRequestPreVoteGrantedWithNoCurrentLeaderEvenIfTimeoutFresh(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	far := time.Now().Add(time.Hour)
	c.volatile.NextElectionTimeout = &far
	c.volatile.CurrentLeader = nil

	candidate := NodeId{GroupID: 1, NodeID: 2}
	resp := c.handleVoteRequest(VoteReq{Term: 1, CandidateID: candidate, PreVote: true})

	require.True(t, resp.VoteGranted)
}

func TestBeginNewElectionTermIncrementsAndVotesSelf(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	c.hardState = HardState{CurrentTerm: 3}

	term, err := c.beginNewElectionTerm()
	require.NoError(t, err)
	require.Equal(t, uint64(4), term)
	require.NotNil(t, c.hardState.VotedFor)
	require.Equal(t, self, *c.hardState.VotedFor)
}

func TestAdoptTermIsNoOpForLowerOrEqualTerm(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	c := newTestCore(t, self)
	c.hardState = HardState{CurrentTerm: 6}

	require.NoError(t, c.adoptTerm(6))
	require.Equal(t, uint64(6), c.hardState.CurrentTerm)

	require.NoError(t, c.adoptTerm(3))
	require.Equal(t, uint64(6), c.hardState.CurrentTerm)
}
