package raft

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for a single node.
// NewMetrics registers it on the default Prometheus registry and
// NopMetrics on a private one; the state loops update the values
// directly as transitions, votes and heartbeats happen.
type Metrics struct {
	CurrentTerm       prometheus.Gauge
	State             *prometheus.GaugeVec
	VotesGrantedTotal prometheus.Counter
	VotesDeniedTotal  prometheus.Counter
	ElectionsStarted  *prometheus.CounterVec
	ElectionsWonTotal prometheus.Counter
	HeartbeatsSent    prometheus.Counter
	HeartbeatsRecv    prometheus.Counter
	StepDownsTotal    prometheus.Counter
	LeaderChanges     prometheus.Counter
}

// NewMetrics registers a full set of election metrics under namespace
// "raft", labeled with the owning node's id so multiple nodes in one
// process (as in tests) don't collide on a shared registry.
func NewMetrics(node NodeId) *Metrics {
	constLabels := prometheus.Labels{"node": node.String()}

	return &Metrics{
		CurrentTerm: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "raft",
			Name:        "current_term",
			Help:        "Current term observed by this node.",
			ConstLabels: constLabels,
		}),
		State: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "raft",
			Name:        "state",
			Help:        "1 for the state this node currently occupies, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		VotesGrantedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "votes_granted_total",
			Help:        "Total votes this node has granted to candidates.",
			ConstLabels: constLabels,
		}),
		VotesDeniedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "votes_denied_total",
			Help:        "Total real vote requests this node has rejected because it already voted for another candidate in that term.",
			ConstLabels: constLabels,
		}),
		ElectionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "elections_started_total",
			Help:        "Total election rounds started by this node, labeled by pre_vote.",
			ConstLabels: constLabels,
		}, []string{"pre_vote"}),
		ElectionsWonTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "elections_won_total",
			Help:        "Total elections this node has won.",
			ConstLabels: constLabels,
		}),
		HeartbeatsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "heartbeats_sent_total",
			Help:        "Total heartbeat RPCs sent while leader.",
			ConstLabels: constLabels,
		}),
		HeartbeatsRecv: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "heartbeats_received_total",
			Help:        "Total heartbeat RPCs received from a leader.",
			ConstLabels: constLabels,
		}),
		StepDownsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "step_downs_total",
			Help:        "Total times this node stepped down to Follower on a higher term.",
			ConstLabels: constLabels,
		}),
		LeaderChanges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "raft",
			Name:        "leader_changes_total",
			Help:        "Total times this node observed current_leader change.",
			ConstLabels: constLabels,
		}),
	}
}

// observeState zeroes every known state gauge and sets only the current
// one to 1, so a dashboard can graph "what state is node X in" as a
// single time series without needing a `max` aggregation over labels.
func (m *Metrics) observeState(current State) {
	for _, s := range []State{StateStartup, StateFollower, StatePreCandidate, StateCandidate, StateLeader, StateShutdown} {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}

// NopMetrics returns a Metrics backed by a private registry, for tests
// and any caller that does not want to pollute the default registry.
func NopMetrics(node NodeId) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"node": node.String()}
	factory := promauto.With(reg)

	return &Metrics{
		CurrentTerm: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raft", Name: "current_term", Help: "current term", ConstLabels: constLabels,
		}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "raft", Name: "state", Help: "state", ConstLabels: constLabels,
		}, []string{"state"}),
		VotesGrantedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "votes_granted_total", Help: "votes granted", ConstLabels: constLabels,
		}),
		VotesDeniedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "votes_denied_total", Help: "votes denied", ConstLabels: constLabels,
		}),
		ElectionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raft", Name: "elections_started_total", Help: "elections started", ConstLabels: constLabels,
		}, []string{"pre_vote"}),
		ElectionsWonTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "elections_won_total", Help: "elections won", ConstLabels: constLabels,
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "heartbeats_sent_total", Help: "heartbeats sent", ConstLabels: constLabels,
		}),
		HeartbeatsRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "heartbeats_received_total", Help: "heartbeats received", ConstLabels: constLabels,
		}),
		StepDownsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "step_downs_total", Help: "step downs", ConstLabels: constLabels,
		}),
		LeaderChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "leader_changes_total", Help: "leader changes", ConstLabels: constLabels,
		}),
	}
}
