package gossip

import (
	"fmt"
	"time"
)

// Built-in message types. Any other type string may be used; subscribers
// on Wildcard receive every type.
const (
	TypeData       = "data"
	TypeHeartbeat  = "heartbeat"
	TypeMembership = "membership"

	Wildcard = "*"
)

// schemaVersion is the version stamped on published messages.
const schemaVersion = 1

// Message is a single gossip message.
//
// The ID is globally unique and is the deduplication key. Hops counts the
// relays the message has traversed and Path records the IDs of the nodes it
// has visited, so len(Path) == Hops+1 (the origin is on the path with zero
// hops).
type Message struct {
	ID        string      `json:"id" codec:"id"`
	OriginID  string      `json:"origin_id" codec:"origin_id"`
	Content   interface{} `json:"content" codec:"content"`
	Type      string      `json:"type" codec:"type"`
	Version   int         `json:"version" codec:"version"`
	CreatedAt int64       `json:"created_at" codec:"created_at"`
	TTL       int64       `json:"ttl" codec:"ttl"`
	Hops      int         `json:"hops" codec:"hops"`
	Path      []string    `json:"path" codec:"path"`
}

// ExpiresAt returns the time the message expires as epoch milliseconds.
func (m *Message) ExpiresAt() int64 {
	return m.CreatedAt + m.TTL
}

// Expired returns whether the message has exceeded its TTL at the given
// time.
func (m *Message) Expired(nowMs int64) bool {
	return nowMs-m.CreatedAt >= m.TTL
}

// OnPath returns whether the node with the given ID has already relayed or
// originated the message.
func (m *Message) OnPath(nodeID string) bool {
	for _, id := range m.Path {
		if id == nodeID {
			return true
		}
	}
	return false
}

// forward returns a copy of the message to relay onwards, with the hop count
// incremented and the path extended by the local node.
func (m *Message) forward(nodeID string) *Message {
	fwd := *m
	fwd.Hops = m.Hops + 1
	fwd.Path = make([]string, 0, len(m.Path)+1)
	fwd.Path = append(fwd.Path, m.Path...)
	fwd.Path = append(fwd.Path, nodeID)
	return &fwd
}

func messageID(nodeID string, counter uint64, createdAt int64) string {
	return fmt.Sprintf("gossip-%s-%d-%d", nodeID, counter, createdAt)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
