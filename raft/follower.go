package raft

import "time"

// runFollower waits for a heartbeat or vote request from a peer, or for
// its own randomized election timeout to elapse. On timeout it moves to
// PreCandidate to test whether it could win an election before actually
// disrupting the term.
func (c *core) runFollower(prev *prevStateSlot) State {
	prevState := prev.take()
	c.volatile.PrevState = prevState
	c.spawnEvent(EvTransitToFollower{Term: c.hardState.CurrentTerm, PrevState: prevState})

	var deadline time.Time
	if c.fastElectionHint {
		c.fastElectionHint = false
		deadline = c.newFastElectionDeadline()
	} else {
		deadline = c.newElectionDeadline()
	}

	for {
		msg, ok := c.recvDeadline(deadline)
		if !ok {
			c.logger.LogElectionTimeout()
			c.setLeader(nil)
			return StatePreCandidate
		}

		switch m := msg.(type) {
		case MsgHeartbeat:
			resp := c.handleHeartbeat(m.Req)
			m.Reply <- Result[HeartbeatResp]{Value: resp}
			deadline = *c.volatile.NextElectionTimeout

		case MsgVoteRequest:
			resp := c.handleVoteRequest(m.Req)
			m.Reply <- Result[VoteResp]{Value: resp}
			if c.volatile.NextElectionTimeout != nil {
				deadline = *c.volatile.NextElectionTimeout
			}

		case MsgVoteResponse, MsgHeartbeatResponse:
			// Stray reply to an RPC from a previous role; nothing to do.

		case MsgUpdateOptions:
			m.Reply <- c.updateOptions(m.Options)

		case MsgInitialize:
			m.Reply <- newAlreadyInitializedError(c.members)

		case MsgEventHandlingResult:
			if m.Error != nil {
				c.logger.Warnf("event handler error: %v", m.Error)
			}

		case MsgShutdown:
			return StateShutdown
		}
	}
}
