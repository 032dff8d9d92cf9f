package raft

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// randomDuration returns a uniformly random duration in [min, max). It
// is used to jitter each node's election timeout so that, absent a
// leader, nodes do not all time out and start an election in lockstep.
func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)

	var n uint64
	if err := binary.Read(rand.Reader, binary.BigEndian, &n); err != nil {
		return min
	}
	return min + time.Duration(int64(n%uint64(span)))
}
