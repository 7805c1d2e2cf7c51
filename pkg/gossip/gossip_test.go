package gossip

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmnet/swarm/pkg/log"
)

// fakeSender records the message/peer pairs handed to it.
type fakeSender struct {
	sends []send
	err   error
}

type send struct {
	peerID string
	m      *Message
}

func (s *fakeSender) Send(peer Peer, m *Message) error {
	s.sends = append(s.sends, send{peerID: peer.ID, m: m})
	return s.err
}

// allPeers is a deterministic selector that relays to every candidate.
func allPeers(candidates []Peer, _ int) []Peer {
	return candidates
}

func testProtocol(t *testing.T, nodeID string, sender Sender) *Protocol {
	protocol, err := NewProtocol(nodeID, DefaultConfig(), sender, log.NewNopLogger())
	require.NoError(t, err)
	return protocol
}

// testMessage returns a message as relayed by the given origin.
func testMessage(originID string, id string) *Message {
	return &Message{
		ID:        id,
		OriginID:  originID,
		Content:   map[string]interface{}{"x": 1},
		Type:      TypeData,
		Version:   schemaVersion,
		CreatedAt: nowMillis(),
		TTL:       (time.Second * 30).Milliseconds(),
		Hops:      0,
		Path:      []string{originID},
	}
}

func TestNewProtocol(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Fanout = 0
		_, err := NewProtocol("node-1", conf, nil, log.NewNopLogger())
		assert.Error(t, err)
	})

	t.Run("missing node id", func(t *testing.T) {
		_, err := NewProtocol("", DefaultConfig(), nil, log.NewNopLogger())
		assert.Error(t, err)
	})
}

func TestProtocol_Publish(t *testing.T) {
	t.Run("message id contains node id", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		id := protocol.Publish(map[string]interface{}{"x": 1}, "")
		assert.True(t, strings.Contains(id, "gossip-"))
		assert.True(t, strings.Contains(id, "node-1"))
	})

	t.Run("delivers to subscriber before returning", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		var delivered []*Message
		protocol.Subscribe(TypeData, func(m *Message) {
			delivered = append(delivered, m)
		})

		id := protocol.Publish(map[string]interface{}{"x": 1}, "")

		require.Len(t, delivered, 1)
		assert.Equal(t, id, delivered[0].ID)
		assert.Equal(t, "node-1", delivered[0].OriginID)
		assert.Equal(t, 0, delivered[0].Hops)
		assert.Equal(t, []string{"node-1"}, delivered[0].Path)
	})

	t.Run("empty type defaults to data", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		protocol.Publish("v", "")
		assert.Equal(t, 1, fired)
	})

	t.Run("increments sent counter", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		protocol.Publish("a", "")
		protocol.Publish("b", "")
		protocol.Publish("c", TypeHeartbeat)

		assert.Equal(t, uint64(3), protocol.Stats().MessagesSent)
	})

	t.Run("operates while stopped", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		require.False(t, protocol.IsRunning())

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})
		protocol.Publish("v", "")
		assert.Equal(t, 1, fired)
	})
}

func TestProtocol_PublishHeartbeat(t *testing.T) {
	protocol := testProtocol(t, "node-1", nil)

	var delivered []*Message
	protocol.Subscribe(TypeHeartbeat, func(m *Message) {
		delivered = append(delivered, m)
	})

	protocol.PublishHeartbeat(map[string]interface{}{"addr": "1.1.1.1:1"})

	require.Len(t, delivered, 1)
	assert.Equal(t, TypeHeartbeat, delivered[0].Type)
}

func TestProtocol_PublishMembership(t *testing.T) {
	protocol := testProtocol(t, "node-1", nil)

	var delivered []*Message
	protocol.Subscribe(TypeMembership, func(m *Message) {
		delivered = append(delivered, m)
	})

	protocol.PublishMembership("join", map[string]interface{}{
		"addr": "1.1.1.1:1",
	})

	require.Len(t, delivered, 1)
	content, ok := delivered[0].Content.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "join", content["action"])
	assert.Equal(t, "1.1.1.1:1", content["addr"])
}

func TestProtocol_Receive(t *testing.T) {
	t.Run("accepts new message", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		accepted := protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2")
		assert.True(t, accepted)
		assert.Equal(t, 1, fired)
	})

	t.Run("rejects duplicate", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		assert.True(t, protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2"))
		assert.False(t, protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2"))

		// The matching subscriber fires exactly once.
		assert.Equal(t, 1, fired)
		assert.Equal(t, uint64(1), protocol.Stats().DuplicatesIgnored)
	})

	t.Run("rejects expired", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		m := testMessage("node-2", "gossip-node-2-1-1")
		m.CreatedAt = nowMillis() - 1000
		m.TTL = 1000

		assert.False(t, protocol.Receive(m, "node-2"))
		assert.Equal(t, 0, fired)
		// Not counted as a duplicate.
		assert.Equal(t, uint64(0), protocol.Stats().DuplicatesIgnored)
	})

	t.Run("rejects hop budget exceeded", func(t *testing.T) {
		conf := DefaultConfig()
		conf.MaxHops = 10
		protocol, err := NewProtocol("node-1", conf, nil, log.NewNopLogger())
		require.NoError(t, err)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		m := testMessage("node-2", "gossip-node-2-1-1")
		m.Hops = 15

		assert.False(t, protocol.Receive(m, "node-2"))
		assert.Equal(t, 0, fired)
	})

	t.Run("updates peer liveness", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		protocol.AddPeer("node-2", "2.2.2.2:2", nil)

		before, ok := protocol.Peer("node-2")
		require.True(t, ok)

		time.Sleep(time.Millisecond * 5)

		require.True(t, protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2"))

		after, ok := protocol.Peer("node-2")
		require.True(t, ok)
		assert.True(t, after.LastSeen.After(before.LastSeen))
		assert.True(t, after.Active)
	})

	t.Run("operates while stopped", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		assert.True(t, protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2"))
		assert.Equal(t, 1, fired)
	})
}

func TestProtocol_Subscribe(t *testing.T) {
	t.Run("wildcard receives every type", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(Wildcard, func(m *Message) {
			fired++
		})

		protocol.Publish("a", "")
		protocol.Publish("b", TypeHeartbeat)
		protocol.Publish("c", "custom")

		assert.Equal(t, 3, fired)
	})

	t.Run("wildcard fires once per publish", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		protocol.Subscribe(Wildcard, func(m *Message) {
			fired++
		})

		protocol.Publish("a", "")
		assert.Equal(t, 1, fired)
	})

	t.Run("delivery follows subscription order", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		var order []string
		protocol.Subscribe(TypeData, func(m *Message) {
			order = append(order, "first")
		})
		protocol.Subscribe(TypeData, func(m *Message) {
			order = append(order, "second")
		})
		protocol.Subscribe(Wildcard, func(m *Message) {
			order = append(order, "wildcard")
		})

		protocol.Publish("v", "")
		assert.Equal(t, []string{"first", "second", "wildcard"}, order)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		fired := 0
		unsubscribe := protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		protocol.Publish("a", "")
		unsubscribe()
		protocol.Publish("b", "")

		assert.Equal(t, 1, fired)
	})

	t.Run("panicking handler does not block delivery", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		protocol.Subscribe(TypeData, func(m *Message) {
			panic("handler failed")
		})

		fired := 0
		protocol.Subscribe(TypeData, func(m *Message) {
			fired++
		})

		protocol.Publish("v", "")
		assert.Equal(t, 1, fired)

		// Protocol state is not corrupted.
		assert.Equal(t, uint64(1), protocol.Stats().MessagesSent)
	})
}

func TestProtocol_GossipRound(t *testing.T) {
	t.Run("no-op while stopped", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.AddPeer("node-2", "2.2.2.2:2", nil)
		protocol.Publish("v", "")

		protocol.GossipRound()

		assert.Equal(t, uint64(0), protocol.Stats().GossipRounds)
		assert.Empty(t, sender.sends)
	})

	t.Run("increments round counter once per call", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", &fakeSender{})
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)
		protocol.AddPeer("peer-2", "2.2.2.2:2", nil)
		protocol.Publish("v", "")

		protocol.GossipRound()
		assert.Equal(t, uint64(1), protocol.Stats().GossipRounds)

		protocol.GossipRound()
		protocol.GossipRound()
		assert.Equal(t, uint64(3), protocol.Stats().GossipRounds)
	})

	t.Run("relays published messages to active peers", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)
		protocol.AddPeer("peer-2", "2.2.2.2:2", nil)

		id := protocol.Publish("v", "")
		protocol.GossipRound()

		require.Len(t, sender.sends, 2)
		for _, s := range sender.sends {
			assert.Equal(t, id, s.m.ID)
			assert.Equal(t, 0, s.m.Hops)
		}
	})

	t.Run("relays received messages with incremented hops", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("node-3", "3.3.3.3:3", nil)

		m := testMessage("node-2", "gossip-node-2-1-1")
		require.True(t, protocol.Receive(m, "node-2"))

		protocol.GossipRound()

		require.Len(t, sender.sends, 1)
		assert.Equal(t, 1, sender.sends[0].m.Hops)
		assert.Equal(t, []string{"node-2", "node-1"}, sender.sends[0].m.Path)
	})

	t.Run("excludes peers on the message path", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("node-2", "2.2.2.2:2", nil)
		protocol.AddPeer("node-3", "3.3.3.3:3", nil)

		m := testMessage("node-2", "gossip-node-2-1-1")
		require.True(t, protocol.Receive(m, "node-2"))

		protocol.GossipRound()

		// node-2 already relayed the message so only node-3 is sampled.
		require.Len(t, sender.sends, 1)
		assert.Equal(t, "node-3", sender.sends[0].peerID)
	})

	t.Run("bounded by fanout", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Fanout = 2
		sender := &fakeSender{}
		protocol, err := NewProtocol("node-1", conf, sender, log.NewNopLogger())
		require.NoError(t, err)
		protocol.Start()

		for i := 0; i < 10; i++ {
			protocol.AddPeer(
				fmt.Sprintf("peer-%d", i),
				fmt.Sprintf("1.1.1.%d:1", i),
				nil,
			)
		}

		protocol.Publish("v", "")
		protocol.GossipRound()

		assert.Len(t, sender.sends, 2)
	})

	t.Run("send failure does not abort round", func(t *testing.T) {
		sender := &fakeSender{err: fmt.Errorf("connection refused")}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)
		protocol.AddPeer("peer-2", "2.2.2.2:2", nil)

		protocol.Publish("v", "")
		protocol.GossipRound()

		// Both peers were attempted despite the failures.
		assert.Len(t, sender.sends, 2)
		assert.Equal(t, uint64(1), protocol.Stats().GossipRounds)
	})

	t.Run("pending drained after round", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)

		protocol.Publish("v", "")
		protocol.GossipRound()
		require.Len(t, sender.sends, 1)

		// The message is not relayed again next round.
		protocol.GossipRound()
		assert.Len(t, sender.sends, 1)
	})

	t.Run("custom selector", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)
		protocol.AddPeer("peer-2", "2.2.2.2:2", nil)

		protocol.SetPeerSelector(func(candidates []Peer, fanout int) []Peer {
			for _, peer := range candidates {
				if peer.ID == "peer-2" {
					return []Peer{peer}
				}
			}
			return nil
		})

		protocol.Publish("v", "")
		protocol.GossipRound()

		require.Len(t, sender.sends, 1)
		assert.Equal(t, "peer-2", sender.sends[0].peerID)
	})
}

func TestProtocol_Lifecycle(t *testing.T) {
	t.Run("start is idempotent", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		protocol.Start()
		protocol.Start()
		assert.True(t, protocol.IsRunning())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		protocol.Start()
		protocol.Stop()
		protocol.Stop()
		assert.False(t, protocol.IsRunning())
	})

	t.Run("stop halts relaying", func(t *testing.T) {
		sender := &fakeSender{}
		protocol := testProtocol(t, "node-1", sender)
		protocol.SetPeerSelector(allPeers)
		protocol.Start()
		protocol.AddPeer("peer-1", "1.1.1.1:1", nil)

		protocol.Publish("v", "")
		protocol.Stop()
		protocol.GossipRound()

		assert.Empty(t, sender.sends)
	})
}

func TestProtocol_Peers(t *testing.T) {
	t.Run("self is excluded", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		protocol.AddPeer("node-1", "1.1.1.1:1", nil)
		assert.Empty(t, protocol.Peers())
	})

	t.Run("remove unknown returns false", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		assert.False(t, protocol.RemovePeer("node-2"))
	})

	t.Run("add and remove", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)

		protocol.AddPeer("node-2", "2.2.2.2:2", map[string]string{"region": "eu"})
		protocol.AddPeer("node-3", "3.3.3.3:3", nil)

		peers := protocol.Peers()
		require.Len(t, peers, 2)
		assert.Equal(t, "node-2", peers[0].ID)
		assert.Equal(t, "eu", peers[0].Metadata["region"])
		assert.Equal(t, "node-3", peers[1].ID)

		assert.True(t, protocol.RemovePeer("node-2"))
		assert.Len(t, protocol.Peers(), 1)
	})

	t.Run("unknown lookup returns absent", func(t *testing.T) {
		protocol := testProtocol(t, "node-1", nil)
		_, ok := protocol.Peer("node-2")
		assert.False(t, ok)
	})
}

func TestProtocol_Stats(t *testing.T) {
	protocol := testProtocol(t, "node-1", &fakeSender{})
	protocol.Start()
	protocol.AddPeer("node-2", "2.2.2.2:2", nil)

	protocol.Publish("a", "")
	protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2")
	protocol.Receive(testMessage("node-2", "gossip-node-2-1-1"), "node-2")
	protocol.GossipRound()

	stats := protocol.Stats()
	assert.Equal(t, 1, stats.PeerCount)
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(1), stats.DuplicatesIgnored)
	assert.Equal(t, uint64(1), stats.GossipRounds)

	protocol.ResetStats()

	stats = protocol.Stats()
	assert.Equal(t, 1, stats.PeerCount)
	assert.Equal(t, uint64(0), stats.MessagesSent)
	assert.Equal(t, uint64(0), stats.DuplicatesIgnored)
	assert.Equal(t, uint64(0), stats.GossipRounds)
}

func TestProtocol_Config(t *testing.T) {
	conf := DefaultConfig()
	conf.Fanout = 5
	protocol, err := NewProtocol("node-1", conf, nil, log.NewNopLogger())
	require.NoError(t, err)

	view := protocol.Config()
	assert.Equal(t, 5, view.Fanout)
	assert.Equal(t, conf.MaxHops, view.MaxHops)
	assert.Equal(t, conf.MaxTTL, view.MaxTTL)
	assert.Equal(t, conf.Interval, view.Interval)
}
