package raft

import "sort"

// Membership is the set of NodeId in a group, each with an associated
// VoteFactor. Initial membership arrives via Initialize and is immutable
// within a term — the core does not implement joint consensus.
type Membership struct {
	weights map[NodeId]VoteFactor
}

// NewMembership builds a Membership from a set of (NodeId, weight) pairs.
func NewMembership(members map[NodeId]VoteFactor) Membership {
	weights := make(map[NodeId]VoteFactor, len(members))
	for id, w := range members {
		weights[id] = w
	}
	return Membership{weights: weights}
}

// Clone returns a deep copy so the caller cannot mutate the receiver's
// backing map.
func (m Membership) Clone() Membership {
	return NewMembership(m.weights)
}

// Len returns the number of members.
func (m Membership) Len() int { return len(m.weights) }

// Contains reports whether id is a member.
func (m Membership) Contains(id NodeId) bool {
	_, ok := m.weights[id]
	return ok
}

// WeightOf returns id's vote factor, or zero if id is not a member.
func (m Membership) WeightOf(id NodeId) VoteFactor {
	return m.weights[id]
}

// TotalWeight sums the vote factors of every member.
func (m Membership) TotalWeight() VoteFactor {
	var total VoteFactor
	for _, w := range m.weights {
		total += w
	}
	return total
}

// WeightOfSet sums the vote factors of the members present in ids.
func (m Membership) WeightOfSet(ids map[NodeId]struct{}) VoteFactor {
	var total VoteFactor
	for id := range ids {
		total += m.weights[id]
	}
	return total
}

// Peers returns every member other than self, sorted for deterministic
// broadcast order (useful for tests and for logging).
func (m Membership) Peers(self NodeId) []NodeId {
	peers := make([]NodeId, 0, len(m.weights))
	for id := range m.weights {
		if id != self {
			peers = append(peers, id)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Less(peers[j]) })
	return peers
}

// IDs returns every member, including self, in sorted order.
func (m Membership) IDs() []NodeId {
	ids := make([]NodeId, 0, len(m.weights))
	for id := range m.weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// AddressBook resolves NodeId to a network address for transports that
// need one (GRPCTransport). Router does not need this: it routes
// directly to in-process Node values.
type AddressBook struct {
	addrs map[NodeId]string
}

// NewAddressBook builds an AddressBook from a NodeId -> address map.
func NewAddressBook(addrs map[NodeId]string) *AddressBook {
	book := &AddressBook{addrs: make(map[NodeId]string, len(addrs))}
	for id, addr := range addrs {
		book.addrs[id] = addr
	}
	return book
}

// Lookup returns the network address registered for id.
func (b *AddressBook) Lookup(id NodeId) (string, bool) {
	addr, ok := b.addrs[id]
	return addr, ok
}

// Register adds or replaces the address for id.
func (b *AddressBook) Register(id NodeId, addr string) {
	b.addrs[id] = addr
}
