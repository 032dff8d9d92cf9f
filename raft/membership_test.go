package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMembershipPeersExcludesSelf(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	peerA := NodeId{GroupID: 1, NodeID: 2}
	peerB := NodeId{GroupID: 1, NodeID: 3}
	members := NewMembership(map[NodeId]VoteFactor{self: 1, peerA: 1, peerB: 1})

	peers := members.Peers(self)
	require.Len(t, peers, 2)
	require.NotContains(t, peers, self)
	require.ElementsMatch(t, peers, []NodeId{peerA, peerB})
}

func TestMembershipCloneIsIndependent(t *testing.T) {
	id := NodeId{GroupID: 1, NodeID: 1}
	original := NewMembership(map[NodeId]VoteFactor{id: 5})
	clone := original.Clone()

	require.Equal(t, original.WeightOf(id), clone.WeightOf(id))

	clone.weights[id] = 9
	require.Equal(t, VoteFactor(5), original.WeightOf(id))
}

func TestAddressBookRegisterAndLookup(t *testing.T) {
	book := NewAddressBook(map[NodeId]string{
		{GroupID: 1, NodeID: 1}: "127.0.0.1:7001",
	})

	addr, ok := book.Lookup(NodeId{GroupID: 1, NodeID: 1})
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:7001", addr)

	_, ok = book.Lookup(NodeId{GroupID: 1, NodeID: 2})
	require.False(t, ok)

	book.Register(NodeId{GroupID: 1, NodeID: 2}, "127.0.0.1:7002")
	addr, ok = book.Lookup(NodeId{GroupID: 1, NodeID: 2})
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:7002", addr)
}

func TestNodeIdOrdering(t *testing.T) {
	a := NodeId{GroupID: 1, NodeID: 1}
	b := NodeId{GroupID: 1, NodeID: 2}
	c := NodeId{GroupID: 2, NodeID: 1}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}
