package raft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		ElectionTimeoutMin: 30 * time.Millisecond,
		ElectionTimeoutMax: 60 * time.Millisecond,
		HeartbeatInterval:  10 * time.Millisecond,
		LeaderLease:        200 * time.Millisecond,
		QuorumPolicy:       Major(),
	}
}

type testCluster struct {
	nodes  map[NodeId]*Node
	router *Router
	cancel context.CancelFunc
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	router := NewRouter()
	ids := nodes(n)
	members := make(map[NodeId]VoteFactor, n)
	for _, id := range ids {
		members[id] = 1
	}
	membership := NewMembership(members)

	tc := &testCluster{nodes: make(map[NodeId]*Node, n), router: router}
	ctx, cancel := context.WithCancel(context.Background())
	tc.cancel = cancel

	for _, id := range ids {
		node, err := NewNode(id, fastOptions(), NewMemHardStateStore(), router, GoroutineSpawner{}, NopEventSink{}, NopMetrics(id), NewNopLogger(id))
		require.NoError(t, err)
		router.Register(id, node)
		tc.nodes[id] = node

		go func() { _ = node.Run(ctx) }()
	}
	for _, node := range tc.nodes {
		require.NoError(t, node.Initialize(ctx, membership, false))
	}
	return tc
}

func (tc *testCluster) stop() {
	tc.cancel()
}

func (tc *testCluster) awaitLeader(t *testing.T, timeout time.Duration) NodeId {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for id, node := range tc.nodes {
			if node.State() == StateLeader {
				return id
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no leader elected before timeout")
	return NodeId{}
}

func TestClusterElectsSingleLeader(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stop()

	leader := tc.awaitLeader(t, 2*time.Second)

	time.Sleep(50 * time.Millisecond)
	leaderCount := 0
	for _, node := range tc.nodes {
		if node.State() == StateLeader {
			leaderCount++
		}
	}
	require.Equal(t, 1, leaderCount)

	for id, node := range tc.nodes {
		if id != leader {
			require.Eventually(t, func() bool {
				l := node.Leader()
				return l != nil && *l == leader
			}, time.Second, 5*time.Millisecond)
		}
	}
}

func TestClusterReelectsAfterLeaderStops(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stop()

	firstLeader := tc.awaitLeader(t, 2*time.Second)
	tc.router.Unregister(firstLeader)
	tc.nodes[firstLeader].Shutdown()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for id, node := range tc.nodes {
			if id != firstLeader && node.State() == StateLeader {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("cluster failed to elect a new leader after the old one stopped responding")
}

func TestNodeRejectsWrongGroupHeartbeat(t *testing.T) {
	self := NodeId{GroupID: 1, NodeID: 1}
	node, err := NewNode(self, fastOptions(), NewMemHardStateStore(), NewRouter(), GoroutineSpawner{}, NopEventSink{}, NopMetrics(self), NewNopLogger(self))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = node.Run(ctx) }()

	members := NewMembership(map[NodeId]VoteFactor{self: 1})
	require.NoError(t, node.Initialize(ctx, members, false))

	wrongGroupLeader := NodeId{GroupID: 2, NodeID: 9}
	_, err = node.Heartbeat(ctx, HeartbeatReq{Term: 1, LeaderID: wrongGroupLeader})
	require.Error(t, err)
}
