package raft

// runCandidate runs a real election: on entry it increments
// current_term and persists a vote for self (beginNewElectionTerm). A
// won quorum is promoted to Leader; a lost or timed-out round falls
// back to Follower, to be retried as a fresh pre-vote after the next
// election timeout.
func (c *core) runCandidate(prev *prevStateSlot) State {
	term, err := c.beginNewElectionTerm()
	if err != nil {
		c.logger.Errorf("begin new election term: %v", err)
		return StateFollower
	}

	prevState := prev.take()
	c.volatile.PrevState = prevState
	c.spawnEvent(EvTransitToCandidate{Term: term, PrevState: prevState})
	c.logger.LogElectionStart(term, false)

	granted := map[NodeId]struct{}{c.self: {}}
	rejected := map[NodeId]struct{}{}

	if outcome := evaluateQuorum(c.options.QuorumPolicy, c.members, granted, rejected); outcome == Granted {
		c.logger.LogElectionWon(term, len(granted), c.members.Len())
		if c.metrics != nil {
			c.metrics.ElectionsWonTotal.Inc()
		}
		return StateLeader
	}

	if c.metrics != nil {
		c.metrics.ElectionsStarted.WithLabelValues("false").Inc()
	}
	c.broadcastVoteRequests(term, false)
	deadline := c.newElectionDeadline()

	for {
		msg, ok := c.recvDeadline(deadline)
		if !ok {
			c.logger.LogElectionLost(term, "timed out without quorum")
			return StateFollower
		}

		switch m := msg.(type) {
		case MsgVoteResponse:
			if m.Err != nil {
				continue
			}
			if m.Resp.Term > term {
				if err := c.adoptTerm(m.Resp.Term); err != nil {
					c.logger.Errorf("adopt term from vote response: %v", err)
				}
				return StateFollower
			}
			if m.Term != term {
				continue
			}
			if m.Resp.VoteGranted {
				granted[m.From] = struct{}{}
			} else {
				rejected[m.From] = struct{}{}
			}
			switch evaluateQuorum(c.options.QuorumPolicy, c.members, granted, rejected) {
			case Granted:
				c.logger.LogElectionWon(term, len(granted), c.members.Len())
				if c.metrics != nil {
					c.metrics.ElectionsWonTotal.Inc()
				}
				return StateLeader
			case Rejected:
				c.logger.LogElectionLost(term, "quorum unreachable")
				return StateFollower
			}

		case MsgHeartbeat:
			resp := c.handleHeartbeat(m.Req)
			m.Reply <- Result[HeartbeatResp]{Value: resp}
			if resp.Success {
				c.logger.LogElectionLost(term, "discovered a leader")
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

		case MsgHeartbeatResponse:
			// Stray reply from a previous Leader term; ignore.

		case MsgShutdown:
			return StateShutdown
		}
	}
}
