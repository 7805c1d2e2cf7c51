package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/swarmnet/swarm/pkg/gossip"
	"github.com/swarmnet/swarm/pkg/log"
)

func testTransport(t *testing.T) *PacketTransport {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return NewPacketTransport(conn, 1400, log.NewNopLogger())
}

func TestPacketTransport_SendReceive(t *testing.T) {
	tr1 := testTransport(t)
	defer tr1.Close()
	tr2 := testTransport(t)
	defer tr2.Close()

	p1, err := gossip.NewProtocol(
		"node-1", gossip.DefaultConfig(), tr1, log.NewNopLogger(),
	)
	require.NoError(t, err)
	p2, err := gossip.NewProtocol(
		"node-2", gossip.DefaultConfig(), tr2, log.NewNopLogger(),
	)
	require.NoError(t, err)

	go tr2.Serve(p2)

	delivered := atomic.NewBool(false)
	p2.Subscribe(gossip.TypeData, func(m *gossip.Message) {
		if content, ok := m.Content.(map[string]interface{}); ok {
			if content["greeting"] == "hello" {
				delivered.Store(true)
			}
		}
	})

	p1.Start()
	p1.AddPeer("node-2", tr2.Addr(), nil)

	p1.Publish(map[string]interface{}{"greeting": "hello"}, "")
	p1.GossipRound()

	require.Eventually(t, func() bool {
		return delivered.Load()
	}, time.Second*5, time.Millisecond*10)
}

func TestPacketTransport_MessageAttribution(t *testing.T) {
	tr1 := testTransport(t)
	defer tr1.Close()
	tr2 := testTransport(t)
	defer tr2.Close()

	p1, err := gossip.NewProtocol(
		"node-1", gossip.DefaultConfig(), tr1, log.NewNopLogger(),
	)
	require.NoError(t, err)
	p2, err := gossip.NewProtocol(
		"node-2", gossip.DefaultConfig(), tr2, log.NewNopLogger(),
	)
	require.NoError(t, err)

	go tr2.Serve(p2)

	p1.Start()
	p1.AddPeer("node-2", tr2.Addr(), nil)
	// node-2 knows node-1, so receiving should refresh its liveness.
	p2.AddPeer("node-1", tr1.Addr(), nil)

	before, ok := p2.Peer("node-1")
	require.True(t, ok)

	time.Sleep(time.Millisecond * 5)

	p1.Publish("v", "")
	p1.GossipRound()

	require.Eventually(t, func() bool {
		after, ok := p2.Peer("node-1")
		return ok && after.LastSeen.After(before.LastSeen)
	}, time.Second*5, time.Millisecond*10)
}

func TestPacketTransport_SendErrors(t *testing.T) {
	t.Run("message exceeds max packet size", func(t *testing.T) {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		tr := NewPacketTransport(conn, 64, log.NewNopLogger())
		defer tr.Close()

		payload := make([]byte, 1024)
		m := &gossip.Message{
			ID:       "gossip-node-1-1-1",
			OriginID: "node-1",
			Content:  payload,
			Type:     gossip.TypeData,
			Path:     []string{"node-1"},
		}

		err = tr.Send(gossip.Peer{ID: "node-2", Addr: "127.0.0.1:1"}, m)
		assert.Error(t, err)
	})

	t.Run("invalid peer address", func(t *testing.T) {
		tr := testTransport(t)
		defer tr.Close()

		m := &gossip.Message{
			ID:       "gossip-node-1-1-1",
			OriginID: "node-1",
			Type:     gossip.TypeData,
			Path:     []string{"node-1"},
		}

		err := tr.Send(gossip.Peer{ID: "node-2", Addr: "not-an-addr"}, m)
		assert.Error(t, err)
	})
}

func TestSenderID(t *testing.T) {
	t.Run("last path entry", func(t *testing.T) {
		m := &gossip.Message{
			OriginID: "node-1",
			Path:     []string{"node-1", "node-2"},
		}
		assert.Equal(t, "node-2", senderID(m))
	})

	t.Run("falls back to origin", func(t *testing.T) {
		m := &gossip.Message{OriginID: "node-1"}
		assert.Equal(t, "node-1", senderID(m))
	})
}
