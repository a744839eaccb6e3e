// Package peer maintains the set of known peers and their reported status.
// Writes are rare (connect/disconnect); reads happen on every broadcast
// fan-out, so the set sits behind its own reader-writer lock.
package peer

import (
	"sync"

	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Peer represents information about a node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{Host: host}
}

// Match validates if the specified host matches this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents what a peer last told us about its chain.
type Status struct {
	NodeID    string           `json:"node_id"`
	TipHeight uint64           `json:"tip_height"`
	TipHash   transaction.Hash `json:"tip_hash"`
}

// =============================================================================

// Set maintains the known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs a set to manage node peer information.
func NewSet() *Set {
	return &Set{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new peer to the set, reporting whether it was unknown.
func (ps *Set) Add(p Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[p]; exists {
		return false
	}
	ps.set[p] = struct{}{}
	return true
}

// Remove removes a peer from the set.
func (ps *Set) Remove(p Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, p)
}

// Count returns the number of known peers.
func (ps *Set) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers, excluding the given host.
func (ps *Set) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for p := range ps.set {
		if !p.Match(host) {
			peers = append(peers, p)
		}
	}
	return peers
}
