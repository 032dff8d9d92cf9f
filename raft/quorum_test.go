package raft

import "testing"

func nodes(n int) []NodeId {
	ids := make([]NodeId, n)
	for i := range ids {
		ids[i] = NodeId{GroupID: 1, NodeID: uint64(i + 1)}
	}
	return ids
}

func asSet(ids ...NodeId) map[NodeId]struct{} {
	set := make(map[NodeId]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestEvaluateQuorumMajor(t *testing.T) {
	n := nodes(5)
	members := NewMembership(map[NodeId]VoteFactor{
		n[0]: 1, n[1]: 1, n[2]: 1, n[3]: 1, n[4]: 1,
	})
	policy := Major()

	if got := evaluateQuorum(policy, members, asSet(n[0], n[1]), nil); got != Pending {
		t.Fatalf("2/5 granted: got %s, want Pending", got)
	}
	if got := evaluateQuorum(policy, members, asSet(n[0], n[1], n[2]), nil); got != Granted {
		t.Fatalf("3/5 granted: got %s, want Granted", got)
	}
	if got := evaluateQuorum(policy, members, nil, asSet(n[0], n[1], n[2])); got != Rejected {
		t.Fatalf("3/5 rejected: got %s, want Rejected", got)
	}
}

func TestEvaluateQuorumAny(t *testing.T) {
	n := nodes(4)
	members := NewMembership(map[NodeId]VoteFactor{
		n[0]: 1, n[1]: 1, n[2]: 1, n[3]: 1,
	})
	policy := Any(2)

	if got := evaluateQuorum(policy, members, asSet(n[0]), nil); got != Pending {
		t.Fatalf("1 granted: got %s, want Pending", got)
	}
	if got := evaluateQuorum(policy, members, asSet(n[0], n[1]), nil); got != Granted {
		t.Fatalf("2 granted: got %s, want Granted", got)
	}
	if got := evaluateQuorum(policy, members, nil, asSet(n[0], n[1], n[2])); got != Rejected {
		t.Fatalf("only 1 voter left, need 2: got %s, want Rejected", got)
	}
}

func TestEvaluateQuorumAnyWeighted(t *testing.T) {
	n := nodes(3)
	members := NewMembership(map[NodeId]VoteFactor{
		n[0]: 5, n[1]: 3, n[2]: 2,
	})
	policy := AnyWeighted(5)

	if got := evaluateQuorum(policy, members, asSet(n[1]), nil); got != Pending {
		t.Fatalf("weight 3/5: got %s, want Pending", got)
	}
	if got := evaluateQuorum(policy, members, asSet(n[0]), nil); got != Granted {
		t.Fatalf("weight 5/5: got %s, want Granted", got)
	}
	if got := evaluateQuorum(policy, members, nil, asSet(n[0], n[1])); got != Rejected {
		t.Fatalf("remaining weight 2 < w=5 after n0 and n1 reject: got %s, want Rejected", got)
	}
}

func TestMembershipWeightOfSet(t *testing.T) {
	n := nodes(2)
	members := NewMembership(map[NodeId]VoteFactor{n[0]: 4, n[1]: 6})

	if got := members.WeightOfSet(asSet(n[0])); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	if got := members.TotalWeight(); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
	if members.Contains(NodeId{GroupID: 1, NodeID: 99}) {
		t.Fatal("unexpected member")
	}
}
