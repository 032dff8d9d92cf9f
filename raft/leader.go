package raft

import "time"

// runLeader periodically broadcasts heartbeats and tracks, per
// heartbeat round, which members have acknowledged. If a quorum of
// acknowledgements hasn't landed within LeaderLease of the last
// quorum-confirmed round, this node can no longer trust its own
// leadership (it may be partitioned from the rest of the group) and
// steps down to Follower rather than continuing to act unilaterally.
func (c *core) runLeader(prev *prevStateSlot) State {
	term := c.hardState.CurrentTerm
	prevState := prev.take()
	c.volatile.PrevState = prevState
	c.spawnEvent(EvTransitToLeader{Term: term, PrevState: prevState})
	self := c.self
	c.setLeader(&self)
	c.volatile.NextElectionTimeout = nil

	ticker := time.NewTicker(c.options.HeartbeatInterval)
	defer ticker.Stop()

	acked := map[NodeId]struct{}{c.self: {}}
	lastQuorumAt := time.Now()
	c.broadcastHeartbeats(term)

	for {
		select {
		case <-ticker.C:
			if evaluateQuorum(c.options.QuorumPolicy, c.members, acked, nil) == Granted {
				lastQuorumAt = time.Now()
			} else if time.Since(lastQuorumAt) > c.options.LeaderLease {
				c.logger.Infof("leader lease expired without quorum acknowledgement, stepping down")
				return StateFollower
			}
			acked = map[NodeId]struct{}{c.self: {}}
			c.broadcastHeartbeats(term)

		case msg, ok := <-c.intake:
			if !ok {
				return StateShutdown
			}
			switch m := msg.(type) {
			case MsgHeartbeatResponse:
				if m.Err != nil {
					continue
				}
				if m.Resp.Term > term {
					if err := c.adoptTerm(m.Resp.Term); err != nil {
						c.logger.Errorf("adopt term from heartbeat response: %v", err)
					}
					return StateFollower
				}
				if m.Term == term && m.Resp.Success {
					acked[m.From] = struct{}{}
				}

			case MsgHeartbeat:
				resp := c.handleHeartbeat(m.Req)
				m.Reply <- Result[HeartbeatResp]{Value: resp}
				if m.Req.Term > term {
					return StateFollower
				}

			case MsgVoteRequest:
				beforeTerm := c.hardState.CurrentTerm
				resp := c.handleVoteRequest(m.Req)
				m.Reply <- Result[VoteResp]{Value: resp}
				if c.hardState.CurrentTerm > beforeTerm {
					return StateFollower
				}

			case MsgUpdateOptions:
				m.Reply <- c.updateOptions(m.Options)

			case MsgInitialize:
				m.Reply <- newAlreadyInitializedError(c.members)

			case MsgEventHandlingResult:
				if m.Error != nil {
					c.logger.Warnf("event handler error: %v", m.Error)
				}

			case MsgVoteResponse:
				// Stray reply from a previous candidacy; ignore.

			case MsgShutdown:
				return StateShutdown
			}
		}
	}
}
