package raft

// runPreCandidate runs a pre-vote round: it asks every peer "would you
// grant me a real vote right now", without incrementing current_term or
// recording a real voted_for. A round that would win is promoted to a
// real election (Candidate); a round that cannot possibly win, or times
// out undecided, falls back to Follower so the next election timeout
// retries from scratch.
func (c *core) runPreCandidate(prev *prevStateSlot) State {
	prevState := prev.take()
	c.volatile.PrevState = prevState
	c.spawnEvent(EvTransitToPreCandidate{PrevState: prevState})
	c.logger.LogElectionStart(c.hardState.CurrentTerm+1, true)

	candidateTerm := c.hardState.CurrentTerm + 1
	granted := map[NodeId]struct{}{c.self: {}}
	rejected := map[NodeId]struct{}{}

	if outcome := evaluateQuorum(c.options.QuorumPolicy, c.members, granted, rejected); outcome == Granted {
		return StateCandidate
	}

	if c.metrics != nil {
		c.metrics.ElectionsStarted.WithLabelValues("true").Inc()
	}
	c.broadcastVoteRequests(candidateTerm, true)
	deadline := c.newElectionDeadline()

	for {
		msg, ok := c.recvDeadline(deadline)
		if !ok {
			return StateFollower
		}

		switch m := msg.(type) {
		case MsgVoteResponse:
			if m.Term != candidateTerm || m.Err != nil {
				continue
			}
			if m.Resp.VoteGranted {
				granted[m.From] = struct{}{}
			} else {
				rejected[m.From] = struct{}{}
				if m.Resp.Term > c.hardState.CurrentTerm {
					if err := c.adoptTerm(m.Resp.Term); err != nil {
						c.logger.Errorf("adopt term from pre-vote response: %v", err)
					}
					return StateFollower
				}
			}
			switch evaluateQuorum(c.options.QuorumPolicy, c.members, granted, rejected) {
			case Granted:
				return StateCandidate
			case Rejected:
				return StateFollower
			}

		case MsgHeartbeat:
			resp := c.handleHeartbeat(m.Req)
			m.Reply <- Result[HeartbeatResp]{Value: resp}
			if resp.Success {
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
