package raft

// runStartup blocks until an Initialize call supplies the group's
// membership. Every other message is rejected with a NotInitialized
// error so a misconfigured caller fails fast instead of silently
// queuing requests a node can never service.
func (c *core) runStartup() State {
	for {
		msg, ok := <-c.intake
		if !ok {
			return StateShutdown
		}

		switch m := msg.(type) {
		case MsgInitialize:
			c.members = m.Members
			c.fastElectionHint = m.ForceLeaderHint
			c.setState(StateFollower)
			m.Reply <- nil
			return StateFollower

		case MsgShutdown:
			return StateShutdown

		default:
			replyNotInitialized(msg)
		}
	}
}

// replyNotInitialized answers any request-shaped message with a
// NotInitialized error on its reply channel, if it has one.
func replyNotInitialized(msg Message) {
	err := newNotInitializedError()
	switch m := msg.(type) {
	case MsgHeartbeat:
		m.Reply <- Result[HeartbeatResp]{Err: err}
	case MsgVoteRequest:
		m.Reply <- Result[VoteResp]{Err: err}
	case MsgUpdateOptions:
		m.Reply <- err
	}
}
