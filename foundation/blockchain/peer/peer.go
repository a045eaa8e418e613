// Package peer maintains the set of peer nodes a node gossips with.
package peer

import (
	"net"
	"sort"
	"sync"
)

// Peer represents a node in the network reachable on its peer port.
type Peer struct {
	Host string
}

// New constructs a peer from its host:port address.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// Validate checks the host is in host:port form.
func (p Peer) Validate() error {
	_, _, err := net.SplitHostPort(p.Host)
	return err
}

// =============================================================================

// PeerStatus represents what a peer reported about its chain.
type PeerStatus struct {
	Host            string `json:"host"`
	LatestBlockHash string `json:"latest_block_hash"`
	ChainLength     int    `json:"chain_length"`
	Work            string `json:"work"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new set holding the specified peers.
func NewPeerSet(peers ...Peer) *PeerSet {
	ps := PeerSet{
		set: make(map[Peer]struct{}, len(peers)),
	}

	for _, peer := range peers {
		ps.set[peer] = struct{}{}
	}

	return &ps
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Contains reports whether the peer is in the set.
func (ps *PeerSet) Contains(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[peer]
	return exists
}

// Copy returns the known peers sorted by host, leaving out the
// specified host which is normally the node itself.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
