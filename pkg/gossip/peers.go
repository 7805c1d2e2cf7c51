package gossip

import (
	"sort"
	"sync"
	"time"
)

// Peer describes a known remote node.
type Peer struct {
	// ID is a unique identifier for the peer.
	ID string `json:"id"`

	// Addr is the transport address of the peer. Opaque to the protocol.
	Addr string `json:"addr"`

	// Metadata is opaque peer metadata supplied when the peer was added.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Active indicates whether the peer is considered live.
	Active bool `json:"active"`

	// LastSeen is the last time a message attributed to the peer was
	// accepted.
	LastSeen time.Time `json:"last_seen"`
}

// peerTable tracks the known remote nodes. The local node is never a member
// of its own table.
type peerTable struct {
	localID string
	peers   map[string]*Peer

	// mu protects the above fields.
	mu sync.Mutex
}

func newPeerTable(localID string) *peerTable {
	return &peerTable{
		localID: localID,
		peers:   make(map[string]*Peer),
	}
}

// Add registers a remote peer. Adding the local node is rejected silently.
// Re-adding a known peer updates its address and metadata.
func (t *peerTable) Add(id, addr string, metadata map[string]string) bool {
	if id == t.localID || id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	peer, ok := t.peers[id]
	if !ok {
		peer = &Peer{
			ID:     id,
			Active: true,
		}
		t.peers[id] = peer
	}
	peer.Addr = addr
	peer.Metadata = metadata
	peer.LastSeen = time.Now()
	return !ok
}

func (t *peerTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.peers[id]; !ok {
		return false
	}
	delete(t.peers, id)
	return true
}

func (t *peerTable) Get(id string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	peer, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *peer, true
}

func (t *peerTable) All() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	peers := make([]Peer, 0, len(t.peers))
	for _, peer := range t.peers {
		peers = append(peers, *peer)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
	return peers
}

func (t *peerTable) Active() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var peers []Peer
	for _, peer := range t.peers {
		if peer.Active {
			peers = append(peers, *peer)
		}
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
	return peers
}

func (t *peerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.peers)
}

// Touch refreshes the liveness of the peer with the given ID. Unknown peers
// are ignored.
func (t *peerTable) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	peer, ok := t.peers[id]
	if !ok {
		return
	}
	peer.LastSeen = time.Now()
	peer.Active = true
}

// MarkStale deactivates peers that haven't been seen within the given
// window and returns the IDs of the peers deactivated.
func (t *peerTable) MarkStale(staleAfter time.Duration, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []string
	for _, peer := range t.peers {
		if !peer.Active {
			continue
		}
		if now.Sub(peer.LastSeen) > staleAfter {
			peer.Active = false
			stale = append(stale, peer.ID)
		}
	}
	return stale
}
