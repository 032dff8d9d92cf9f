package raft

import (
	"context"
	"fmt"
	"time"
)

// prevStateSlot captures the state a loop was entered from exactly
// once. The first call to take() returns it; every later call (within
// the same state-loop invocation) returns nil. This keeps a loop that
// processes several messages before transitioning from attaching
// "transitioned from X" to more than one emitted event.
type prevStateSlot struct {
	value *State
}

func newPrevStateSlot(s *State) *prevStateSlot {
	return &prevStateSlot{value: s}
}

func (p *prevStateSlot) take() *State {
	v := p.value
	p.value = nil
	return v
}

// core holds every field a state loop needs and is only ever touched by
// the single goroutine running Node.Run: no mutex guards these fields.
// Node wraps core with the synchronization needed for its public,
// multi-goroutine-safe accessor methods.
type core struct {
	self NodeId

	hardState HardState
	volatile  VolatileState
	members   Membership

	options Options

	// fastElectionHint marks a node bootstrapped with Initialize's
	// ForceLeaderHint as a preferred candidate: its very next Follower
	// iteration uses a near-immediate election deadline instead of a
	// full randomized window, so it reaches PreCandidate ahead of peers
	// without otherwise bypassing the normal state machine.
	fastElectionHint bool

	store     HardStateStore
	transport Transport
	spawner   TaskSpawner
	events    EventSink
	metrics   *Metrics
	logger    *Logger

	intake chan Message
}

func newCore(self NodeId, opts Options, store HardStateStore, transport Transport, spawner TaskSpawner, events EventSink, metrics *Metrics, logger *Logger) (*core, error) {
	hs, err := store.Load()
	if err != nil {
		return nil, newStorageError(fmt.Errorf("load hard state: %w", err))
	}
	return &core{
		self:      self,
		hardState: hs,
		volatile:  VolatileState{State: StateStartup},
		options:   opts,
		store:     store,
		transport: transport,
		spawner:   spawner,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		intake:    make(chan Message, 256),
	}, nil
}

// recv blocks until a message arrives or ctx is done.
func (c *core) recv(ctx context.Context) (Message, bool) {
	select {
	case msg := <-c.intake:
		return msg, true
	case <-ctx.Done():
		return nil, false
	}
}

// recvDeadline blocks until a message arrives or deadline passes,
// whichever comes first. ok is false on deadline expiry.
func (c *core) recvDeadline(deadline time.Time) (msg Message, ok bool) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case msg := <-c.intake:
		return msg, true
	case <-timer.C:
		return nil, false
	}
}

// newElectionDeadline picks a fresh randomized election timeout and
// records it on volatile state so electionTimeoutNearExpiry can observe
// it.
func (c *core) newElectionDeadline() time.Time {
	d := randomDuration(c.options.ElectionTimeoutMin, c.options.ElectionTimeoutMax)
	deadline := time.Now().Add(d)
	c.volatile.NextElectionTimeout = &deadline
	return deadline
}

// newFastElectionDeadline sets an election deadline that has already
// elapsed, for the one Follower iteration following a ForceLeaderHint
// bootstrap: the node still runs the normal Follower -> PreCandidate ->
// Candidate -> Leader path, it just doesn't wait out a full randomized
// timeout to start it.
func (c *core) newFastElectionDeadline() time.Time {
	deadline := time.Now()
	c.volatile.NextElectionTimeout = &deadline
	return deadline
}

// electionTimeoutNearExpiry reports whether this node's own election
// timeout has already elapsed (or was never set), the condition under
// which it grants a pre-vote to a peer whose timeout elapsed first.
func (c *core) electionTimeoutNearExpiry() bool {
	if c.volatile.NextElectionTimeout == nil {
		return true
	}
	return !time.Now().Before(*c.volatile.NextElectionTimeout)
}

// setState updates volatile.State and logs the transition. It does not
// emit events: callers emit the specific EvTransitTo* event themselves
// so they can attach the right payload (term, prev state).
func (c *core) setState(s State) {
	old := c.volatile.State
	c.volatile.State = s
	if old != s {
		c.logger.LogStateChange(old, s, c.hardState.CurrentTerm)
	}
	if c.metrics != nil {
		c.metrics.observeState(s)
	}
}

// setLeader updates current_leader, emitting EvLeaderChanged and a
// metrics bump when it actually changes.
func (c *core) setLeader(leader *NodeId) {
	from := c.volatile.CurrentLeader
	changed := (from == nil) != (leader == nil) || (from != nil && leader != nil && *from != *leader)
	c.volatile.CurrentLeader = leader
	if changed {
		if c.metrics != nil {
			c.metrics.LeaderChanges.Inc()
		}
		c.spawnEvent(EvLeaderChanged{From: from, To: leader, Term: c.hardState.CurrentTerm})
	}
}

// adoptTerm persists a higher observed term and clears the vote, per
// the rule that discovering a higher term always wins: "term T >
// current_term" forces current_term = T, voted_for = nil, durably,
// before anything else happens. No-op if term is not actually higher.
func (c *core) adoptTerm(term uint64) error {
	if term <= c.hardState.CurrentTerm {
		return nil
	}
	oldTerm := c.hardState.CurrentTerm
	c.hardState = HardState{CurrentTerm: term, VotedFor: nil}
	if err := c.store.Save(c.hardState); err != nil {
		return newStorageError(fmt.Errorf("persist adopted term %d: %w", term, err))
	}
	if c.metrics != nil {
		c.metrics.CurrentTerm.Set(float64(term))
		c.metrics.StepDownsTotal.Inc()
	}
	c.logger.LogStepDown(oldTerm, term)
	return nil
}

// beginNewElectionTerm increments current_term, votes for self, and
// persists the result before the candidate loop solicits votes. It is
// only called for a real election: pre-vote rounds never touch
// current_term or voted_for.
func (c *core) beginNewElectionTerm() (uint64, error) {
	term := c.hardState.CurrentTerm + 1
	self := c.self
	c.hardState = HardState{CurrentTerm: term, VotedFor: &self}
	if err := c.store.Save(c.hardState); err != nil {
		return 0, newStorageError(fmt.Errorf("persist new election term %d: %w", term, err))
	}
	if c.metrics != nil {
		c.metrics.CurrentTerm.Set(float64(term))
	}
	return term, nil
}

// spawnEvent hands ev to the event sink through the task spawner so the
// state loop never blocks on an event handler. The spawned task reports
// the handler's result back onto the intake channel as a
// MsgEventHandlingResult (dropped if intake is full); a spawn failure is
// only logged.
func (c *core) spawnEvent(ev Event) {
	term := c.hardState.CurrentTerm
	intake := c.intake
	sink := c.events
	err := c.spawner.Spawn("event:"+eventName(ev), func() {
		herr := sink.HandleEvent(context.Background(), ev)
		select {
		case intake <- MsgEventHandlingResult{Event: ev, Error: herr, Term: term}:
		default:
		}
	})
	if err != nil {
		c.logger.Warnf("failed to spawn event handler for %s: %v", eventName(ev), err)
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case EvTransitToFollower:
		return "transit_to_follower"
	case EvTransitToPreCandidate:
		return "transit_to_pre_candidate"
	case EvTransitToCandidate:
		return "transit_to_candidate"
	case EvTransitToLeader:
		return "transit_to_leader"
	case EvGrantVote:
		return "grant_vote"
	case EvRejectVote:
		return "reject_vote"
	case EvLeaderChanged:
		return "leader_changed"
	default:
		return "unknown"
	}
}

// handleHeartbeat implements the Heartbeat RPC regardless of which
// state the receiving node is in: a stale term is rejected outright, an
// equal-or-higher term always resets the election timeout and updates
// current_leader, and a strictly higher term forces a step down.
func (c *core) handleHeartbeat(req HeartbeatReq) HeartbeatResp {
	if req.Term < c.hardState.CurrentTerm {
		return HeartbeatResp{Term: c.hardState.CurrentTerm, Success: false}
	}

	if err := c.adoptTerm(req.Term); err != nil {
		c.logger.Errorf("adopt term on heartbeat: %v", err)
		return HeartbeatResp{Term: c.hardState.CurrentTerm, Success: false}
	}

	leader := req.LeaderID
	c.setLeader(&leader)
	c.newElectionDeadline()
	if c.metrics != nil {
		c.metrics.HeartbeatsRecv.Inc()
	}
	c.logger.LogHeartbeatReceived(req.LeaderID, req.Term)

	return HeartbeatResp{Term: c.hardState.CurrentTerm, Success: true}
}

// handleVoteRequest implements the RequestVote RPC for both pre-vote
// and real-vote rounds. Pre-vote never mutates current_term or
// voted_for: it only answers "would I vote for you", so a partitioned
// node that incremented its own term in isolation cannot disrupt the
// cluster merely by asking.
func (c *core) handleVoteRequest(req VoteReq) VoteResp {
	if req.Term < c.hardState.CurrentTerm {
		c.spawnEvent(EvRejectVote{Term: req.Term, Candidate: req.CandidateID, Reason: "stale term"})
		return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: false}
	}

	if req.PreVote {
		granted := req.Term >= c.hardState.CurrentTerm &&
			(c.volatile.CurrentLeader == nil || c.electionTimeoutNearExpiry())
		if granted {
			c.logger.LogVoteGranted(req.CandidateID, req.Term, true)
			c.spawnEvent(EvGrantVote{Term: req.Term, Candidate: req.CandidateID})
		} else {
			c.logger.LogVoteDenied(req.CandidateID, req.Term, "own election timeout not near expiry")
			c.spawnEvent(EvRejectVote{Term: req.Term, Candidate: req.CandidateID, Reason: "own election timeout not near expiry"})
		}
		return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: granted}
	}

	if err := c.adoptTerm(req.Term); err != nil {
		c.logger.Errorf("adopt term on vote request: %v", err)
		return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: false}
	}

	votedFor := c.hardState.VotedFor
	canGrant := votedFor == nil || *votedFor == req.CandidateID
	if !canGrant {
		c.logger.LogVoteDenied(req.CandidateID, req.Term, "already voted this term")
		if c.metrics != nil {
			c.metrics.VotesDeniedTotal.Inc()
		}
		c.spawnEvent(EvRejectVote{Term: req.Term, Candidate: req.CandidateID, Reason: "already voted this term"})
		return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: false}
	}

	candidate := req.CandidateID
	c.hardState.VotedFor = &candidate
	if err := c.store.Save(c.hardState); err != nil {
		c.logger.Errorf("persist vote for %s: %v", candidate, err)
		return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: false}
	}
	c.newElectionDeadline()
	if c.metrics != nil {
		c.metrics.VotesGrantedTotal.Inc()
	}
	c.logger.LogVoteGranted(req.CandidateID, req.Term, false)
	c.spawnEvent(EvGrantVote{Term: req.Term, Candidate: req.CandidateID})

	return VoteResp{Term: c.hardState.CurrentTerm, VoteGranted: true}
}

// broadcastVoteRequests fires a VoteReq at every peer concurrently via
// the spawner, feeding each response back onto intake as a
// MsgVoteResponse so the issuing loop observes it like any other
// message instead of blocking on the RPC round trip.
func (c *core) broadcastVoteRequests(term uint64, preVote bool) {
	req := VoteReq{
		Term:           term,
		CandidateID:    c.self,
		PreVote:        preVote,
		VoteFactorHint: c.members.WeightOf(c.self),
	}
	intake := c.intake
	transport := c.transport
	for _, peer := range c.members.Peers(c.self) {
		peer := peer
		name := fmt.Sprintf("vote-request:%s", peer)
		if err := c.spawner.Spawn(name, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.options.HeartbeatInterval*4)
			defer cancel()
			resp, err := transport.SendVoteRequest(ctx, peer, req)
			select {
			case intake <- MsgVoteResponse{Term: term, From: peer, Resp: resp, Err: err}:
			default:
			}
		}); err != nil {
			c.logger.Warnf("spawn vote request to %s: %v", peer, err)
		}
	}
}

// broadcastHeartbeats fires a HeartbeatReq at every peer concurrently,
// the leader's analogue of broadcastVoteRequests.
func (c *core) broadcastHeartbeats(term uint64) {
	req := HeartbeatReq{Term: term, LeaderID: c.self}
	intake := c.intake
	transport := c.transport
	peers := c.members.Peers(c.self)

	for _, peer := range peers {
		peer := peer
		name := fmt.Sprintf("heartbeat:%s", peer)
		if err := c.spawner.Spawn(name, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.options.HeartbeatInterval*4)
			defer cancel()
			resp, err := transport.SendHeartbeat(ctx, peer, req)
			select {
			case intake <- MsgHeartbeatResponse{Term: term, From: peer, Resp: resp, Err: err}:
			default:
			}
		}); err != nil {
			c.logger.Warnf("spawn heartbeat to %s: %v", peer, err)
		}
	}
	if c.metrics != nil {
		c.metrics.HeartbeatsSent.Add(float64(len(peers)))
	}
	c.logger.LogHeartbeatSent(term, len(peers))
}

// updateOptions replaces the runtime options (quorum policy, timeouts).
// It never touches hard state.
func (c *core) updateOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	c.options = opts
	return nil
}
