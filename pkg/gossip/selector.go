package gossip

import (
	"math/rand"
)

// PeerSelector selects which of the candidate peers a message is relayed to
// in a gossip round. Candidates have already been filtered to active peers
// not on the message's path. Implementations must return at most fanout
// peers and must not mutate the candidates slice.
//
// Replacing the default selector with a deterministic one is the intended
// hook for testing.
type PeerSelector func(candidates []Peer, fanout int) []Peer

// uniformSample selects min(fanout, len(candidates)) peers uniformly at
// random without replacement. This is the default selection policy.
func uniformSample(candidates []Peer, fanout int) []Peer {
	if fanout >= len(candidates) {
		selected := make([]Peer, len(candidates))
		copy(selected, candidates)
		return selected
	}

	shuffled := make([]Peer, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:fanout]
}
