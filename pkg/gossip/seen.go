package gossip

// seenSet records the IDs of messages already processed, with time-bounded
// eviction.
//
// Each entry expires at the message's CreatedAt+TTL, bounding memory to the
// distinct IDs seen within the largest TTL in circulation. Expired entries
// are evicted lazily on lookup, or in bulk via Sweep.
//
// seenSet is not safe for concurrent use; Protocol serialises access.
type seenSet struct {
	// expiries maps message ID to expiry time in epoch milliseconds.
	expiries map[string]int64
}

func newSeenSet() *seenSet {
	return &seenSet{
		expiries: make(map[string]int64),
	}
}

// Seen returns whether the given message ID has been processed and not yet
// expired. Looking up an expired entry evicts it.
func (s *seenSet) Seen(id string, nowMs int64) bool {
	expiresAt, ok := s.expiries[id]
	if !ok {
		return false
	}
	if nowMs > expiresAt {
		delete(s.expiries, id)
		return false
	}
	return true
}

// Mark records the given message ID until the given expiry.
func (s *seenSet) Mark(id string, expiresAt int64) {
	s.expiries[id] = expiresAt
}

// Sweep evicts all expired entries and returns the number evicted.
func (s *seenSet) Sweep(nowMs int64) int {
	evicted := 0
	for id, expiresAt := range s.expiries {
		if nowMs > expiresAt {
			delete(s.expiries, id)
			evicted++
		}
	}
	return evicted
}

func (s *seenSet) Len() int {
	return len(s.expiries)
}
